package latex

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Theorem is one theorem environment found in a document.
type Theorem struct {
	Env          string `json:"env"`
	Label        string `json:"label,omitempty"`
	DisplayLabel string `json:"display_label"`
	Number       string `json:"number"`
	Content      string `json:"content"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	// Titled is set when the number came from \begin{env}[...].
	Titled bool `json:"titled"`
}

// numberWindow is how far around a theorem number inference looks.
const numberWindow = 1000

var (
	labelRegex       = regexp.MustCompile(`\\label\{(.*?)\}`)
	labelDigitsRegex = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)`)

	// Tried in order against the text around an untitled theorem.
	numberRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\\label\{(?:theorem|thm)[:_\-]([0-9][0-9.]*)`),
		regexp.MustCompile(`(?i)\\label\{(?:th|theorem):?([0-9][0-9.]*)`),
		regexp.MustCompile(`(?i)\\tag\{\(?([^})]+)\)?\}`),
		regexp.MustCompile(`(?i)theorem[\s~]*(?:\\ref\{[^}]*\}|([0-9][0-9.]*))`),
		regexp.MustCompile(`(?i)theorem[\s~]*([0-9]+\.[0-9]+)`),
		regexp.MustCompile(`(?i)theorem[\s~]*([0-9]+)`),
	}
)

type envPatterns struct {
	env    Environment
	titled *regexp.Regexp
	plain  *regexp.Regexp
}

func compileEnv(env Environment) envPatterns {
	name := regexp.QuoteMeta(env.Name)
	begin := `\\begin\{` + name + `\}`
	end := `\\end\{` + name + `\}`
	return envPatterns{
		env:    env,
		titled: regexp.MustCompile(`(?s)` + begin + `\[([^\]]+)\](.*?)` + end),
		plain:  regexp.MustCompile(`(?s)` + begin + `(.*?)` + end),
	}
}

// Extract finds every theorem environment in text. Titled environments
// (\begin{theorem}[X]) are labelled "Display X"; the rest get an inferred
// number. Matches sharing an end offset are reported once and the result
// is ordered by start offset.
func Extract(text string) []Theorem {
	envs := Environments(text)
	patterns := make([]envPatterns, 0, len(envs))
	for _, env := range envs {
		patterns = append(patterns, compileEnv(env))
	}

	var found []Theorem
	for _, p := range patterns {
		for _, loc := range p.titled.FindAllStringSubmatchIndex(text, -1) {
			number := strings.TrimSpace(text[loc[2]:loc[3]])
			content, label := splitLabel(text[loc[4]:loc[5]])
			found = append(found, Theorem{
				Env:          p.env.Name,
				Label:        label,
				DisplayLabel: p.env.Display + " " + number,
				Number:       number,
				Content:      content,
				Start:        loc[0],
				End:          loc[1],
				Titled:       true,
			})
		}
	}

	numbering := SectionNumbering(text)
	sections := Sections(text)
	counters := make(map[string]int, len(patterns))

	for _, p := range patterns {
		for _, loc := range p.plain.FindAllStringSubmatchIndex(text, -1) {
			content, label := splitLabel(text[loc[2]:loc[3]])
			counters[p.env.Name]++

			number := inferNumber(text, loc[0], loc[1], label)
			if number == "" {
				if sec, ok := sectionAt(sections, loc[0]); numbering && ok {
					number = fmt.Sprintf("%d.%d", sec.Number, counters[p.env.Name])
				} else {
					number = strconv.Itoa(counters[p.env.Name])
				}
			}

			found = append(found, Theorem{
				Env:          p.env.Name,
				Label:        label,
				DisplayLabel: p.env.Display + " " + number,
				Number:       number,
				Content:      content,
				Start:        loc[0],
				End:          loc[1],
			})
		}
	}

	seen := make(map[int]bool, len(found))
	result := found[:0]
	for _, thm := range found {
		if seen[thm.End] {
			continue
		}
		seen[thm.End] = true
		result = append(result, thm)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start < result[j].Start
	})
	return result
}

// splitLabel trims the body and moves its first \label{} out of it.
func splitLabel(body string) (content, label string) {
	content = strings.TrimSpace(body)
	m := labelRegex.FindStringSubmatch(content)
	if m == nil {
		return content, ""
	}
	return strings.TrimSpace(strings.ReplaceAll(content, m[0], "")), m[1]
}

func inferNumber(text string, start, end int, label string) string {
	lo := start - numberWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + numberWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]

	if label != "" {
		ref := regexp.MustCompile(`(?i)\\ref\{` + regexp.QuoteMeta(label) + `\}\s*([0-9][0-9.]*)`)
		if n := firstGroup(ref, window); n != "" {
			return n
		}
	}
	for _, re := range numberRegexes {
		if n := firstGroup(re, window); n != "" {
			return n
		}
	}
	if label != "" {
		if m := labelDigitsRegex.FindStringSubmatch(label); m != nil {
			return m[1]
		}
	}
	return ""
}

// firstGroup returns group 1 of the leftmost match, without trailing dots
// or surrounding parentheses.
func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil || len(m) < 2 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(m[1]), ".()")
}
