package arxiv

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

type atomFeed struct {
	XMLName      xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	TotalResults int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	StartIndex   int         `xml:"http://a9.com/-/spec/opensearch/1.1/ startIndex"`
	Entries      []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Updated   string `xml:"http://www.w3.org/2005/Atom updated"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"http://www.w3.org/2005/Atom category"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"http://arxiv.org/schemas/atom primary_category"`
}

// page is one decoded API response.
type page struct {
	TotalResults int
	Papers       []Paper
}

var spaceRun = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// parseFeed decodes an Atom response body.
func parseFeed(r io.Reader) (*page, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode atom feed: %w", err)
	}

	p := &page{TotalResults: feed.TotalResults}
	for _, e := range feed.Entries {
		// The API reports query errors as a single entry pointing at its
		// error documentation.
		if strings.Contains(e.ID, "api/errors") {
			return nil, fmt.Errorf("arxiv API error: %s", collapse(e.Summary))
		}

		id := ShortID(strings.TrimSpace(e.ID))
		paper := Paper{
			ID:              id,
			PaperLink:       strings.TrimSpace(e.ID),
			LatexLink:       LatexLink(id),
			Title:           collapse(e.Title),
			Summary:         collapse(e.Summary),
			PrimaryCategory: e.PrimaryCategory.Term,
			Published:       parseTime(e.Published),
			Updated:         parseTime(e.Updated),
		}
		for _, a := range e.Authors {
			paper.Authors = append(paper.Authors, collapse(a.Name))
		}
		for _, c := range e.Categories {
			paper.Categories = append(paper.Categories, c.Term)
		}
		p.Papers = append(p.Papers, paper)
	}
	return p, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
