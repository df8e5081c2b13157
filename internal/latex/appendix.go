package latex

import "regexp"

var appendixRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\\appendix`),
	regexp.MustCompile(`(?i)\\section\{Appendix\}`),
	regexp.MustCompile(`(?i)\\section\{Appendices\}`),
	// "\section{A Proofs}" style lettered appendices. Case-sensitive so an
	// ordinary "\section{a ...}" heading is not taken for one.
	regexp.MustCompile(`\\section\{\s*A\s+[^}]*\}`),
	regexp.MustCompile(`(?i)\\section\{[^}]*Appendix[^}]*\}`),
	regexp.MustCompile(`(?i)\\begin\{appendix\}`),
	regexp.MustCompile(`(?i)\\part\{Appendix\}`),
}

// AppendixStart returns the offset of the earliest appendix marker, or -1.
func AppendixStart(text string) int {
	start := -1
	for _, re := range appendixRegexes {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if start < 0 || loc[0] < start {
			start = loc[0]
		}
	}
	return start
}

// TruncateAppendix cuts text at the earliest appendix marker. The boolean
// reports whether a marker was found.
func TruncateAppendix(text string) (string, bool) {
	start := AppendixStart(text)
	if start < 0 {
		return text, false
	}
	return text[:start], true
}
