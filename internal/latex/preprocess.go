// Package latex preprocesses LaTeX sources and extracts theorem environments.
//
// All offsets are byte offsets into the text that was passed in, so callers
// that truncate or strip the source must pass the same text to Extract and
// ContextBefore.
package latex

import (
	"regexp"
	"strings"
)

var (
	blankRunRegex   = regexp.MustCompile(`\n\s*\n+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// Definition forms whose bodies are a single brace group.
	commandRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\\newcommand\{\\[^}]+\}(\[\d+\])?\{[^}]+\}`),
		regexp.MustCompile(`\\DeclareMathOperator\{\\[^}]+\}\{[^}]+\}`),
		regexp.MustCompile(`\\def\\[A-Za-z0-9]+(\[[^\]]*\])?\{[^}]+\}`),
		regexp.MustCompile(`\\renewcommand\{\\[^}]+\}(\[\d+\])?\{[^}]+\}`),
	}
)

// RemoveComments drops everything from an unescaped % to the end of its
// line. Escaped \% is kept. Runs of blank lines collapse to one.
func RemoveComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for len(text) > 0 {
		line := text
		rest := ""
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, rest = text[:i], text[i+1:]
		}
		hadNewline := len(line) < len(text)

		if cut := commentStart(line); cut >= 0 {
			b.WriteString(line[:cut])
			b.WriteByte('\n')
		} else {
			b.WriteString(line)
			if hadNewline {
				b.WriteByte('\n')
			}
		}
		text = rest
	}

	return blankRunRegex.ReplaceAllString(b.String(), "\n\n")
}

func commentStart(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] == '%' && (i == 0 || line[i-1] != '\\') {
			return i
		}
	}
	return -1
}

// CustomCommands collects macro definitions (\newcommand, \renewcommand,
// \DeclareMathOperator, \def) with simple bodies, one per line.
func CustomCommands(text string) string {
	var defs []string
	for _, re := range commandRegexes {
		defs = append(defs, re.FindAllString(text, -1)...)
	}
	return strings.Join(defs, "\n")
}

// ContextBefore returns everything before pos with whitespace collapsed.
func ContextBefore(text string, pos int) string {
	if pos > len(text) {
		pos = len(text)
	}
	if pos < 0 {
		pos = 0
	}
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text[:pos], " "))
}
