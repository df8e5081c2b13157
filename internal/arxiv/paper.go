// Package arxiv queries the arXiv API for papers and downloads their LaTeX
// sources.
package arxiv

import (
	"strings"
	"time"
)

// EprintBaseURL is where arXiv serves submission sources.
const EprintBaseURL = "https://arxiv.org/e-print/"

// Paper is one arXiv entry.
type Paper struct {
	ID              string    `json:"id"`
	PaperLink       string    `json:"paper_link"`
	LatexLink       string    `json:"latex_link"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary,omitempty"`
	Authors         []string  `json:"authors,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	PrimaryCategory string    `json:"primary_category,omitempty"`
	Published       time.Time `json:"published"`
	Updated         time.Time `json:"updated"`
}

// ShortID extracts "2303.01234v2" (or "math/0601001v1") from an entry id
// such as "http://arxiv.org/abs/2303.01234v2".
func ShortID(entryID string) string {
	if i := strings.LastIndex(entryID, "arxiv.org/abs/"); i >= 0 {
		return entryID[i+len("arxiv.org/abs/"):]
	}
	return entryID
}

// LatexLink returns the e-print URL for a short id.
func LatexLink(id string) string {
	return EprintBaseURL + id
}
