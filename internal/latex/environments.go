package latex

import (
	"regexp"
	"strconv"
	"strings"
)

// Environment is a theorem-like environment and the name it prints as.
type Environment struct {
	Name    string
	Display string
}

// Section is a \section heading and the number it is assigned.
type Section struct {
	Number int
	Pos    int
	Title  string
}

var (
	newTheoremRegex     = regexp.MustCompile(`\\newtheorem\*?\{([^}]+)\}(?:\[[^\]]*\])?\{([^}]+)\}`)
	sectionRegex        = regexp.MustCompile(`\\section\s*(?:\[.*?\])?\s*\{([^}]*)\}`)
	explicitNumberRegex = regexp.MustCompile(`^(\d+)[.\s]+`)

	// Markers of theorems numbered within sections.
	sectionNumberingMarkers = []string{
		`\numberwithin{theorem}{section}`,
		`\numberwithin{thm}{section}`,
		`\renewcommand{\thethm}{\thesection.\arabic{thm}}`,
		`\renewcommand{\thetheorem}{\thesection.\arabic{theorem}}`,
		`\newtheorem{theorem}{Theorem}[section]`,
	}
)

// Environments returns the built-in theorem environment followed by every
// \newtheorem declaration whose name or display name mentions "theorem".
func Environments(text string) []Environment {
	envs := []Environment{{Name: "theorem", Display: "Theorem"}}
	seen := map[string]bool{"theorem": true}

	for _, m := range newTheoremRegex.FindAllStringSubmatch(text, -1) {
		name, display := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if seen[name] {
			continue
		}
		if !strings.Contains(strings.ToLower(name), "theorem") &&
			!strings.Contains(strings.ToLower(display), "theorem") {
			continue
		}
		seen[name] = true
		envs = append(envs, Environment{Name: name, Display: display})
	}
	return envs
}

// SectionNumbering reports whether the document numbers theorems within
// sections.
func SectionNumbering(text string) bool {
	for _, marker := range sectionNumberingMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Sections lists \section headings in order. A heading that starts with an
// explicit positive number ("\section{2. Main results}") resets the count.
func Sections(text string) []Section {
	var sections []Section
	current := 0
	for _, loc := range sectionRegex.FindAllStringSubmatchIndex(text, -1) {
		current++
		title := text[loc[2]:loc[3]]
		if m := explicitNumberRegex.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				current = n
			}
		}
		sections = append(sections, Section{Number: current, Pos: loc[0], Title: title})
	}
	return sections
}

// sectionAt returns the last section starting before pos.
func sectionAt(sections []Section, pos int) (Section, bool) {
	var found Section
	ok := false
	for _, s := range sections {
		if s.Pos >= pos {
			break
		}
		found, ok = s, true
	}
	return found, ok
}
