// Package manifest parses and validates flat dependency manifests in the
// requirements.txt style: one `<name><comparator><version>` specifier per
// line, `#` comments, and comment blocks that list standard-library modules
// which need no installation.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Comparators in longest-match-first order.
var Comparators = []string{"===", "==", "!=", "~=", ">=", "<=", ">", "<"}

var (
	specifierPattern = regexp.MustCompile(
		`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)` + // name
			`(?:\[([A-Za-z0-9._,\s-]*)\])?` + // extras
			`\s*(?:(===|==|!=|~=|>=|<=|>|<)\s*` + // comparator
			`([0-9]+(?:\.[0-9]+)*(?:\.\*)?(?:(?:a|b|rc)[0-9]+)?(?:\.post[0-9]+)?(?:\.dev[0-9]+)?))?$`) // version
	normalizePattern = regexp.MustCompile(`[-_.]+`)
)

// Requirement is one dependency specifier line.
type Requirement struct {
	Name       string
	Extras     []string
	Comparator string
	Version    string
	Comment    string
	Line       int
	Raw        string
}

// Key returns the normalized identity of the requirement's package.
func (r Requirement) Key() string {
	return Normalize(r.Name)
}

// Triple returns the (name, comparator, version) view of the requirement.
func (r Requirement) Triple() Triple {
	return Triple{Name: r.Name, Comparator: r.Comparator, Version: r.Version}
}

// Specifier re-emits the requirement without its comment.
func (r Requirement) Specifier() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteString("]")
	}
	b.WriteString(r.Comparator)
	b.WriteString(r.Version)
	return b.String()
}

func (r Requirement) String() string {
	return r.Specifier()
}

// Triple is the comparable core of a requirement.
type Triple struct {
	Name       string
	Comparator string
	Version    string
}

// Comment is a comment-only line.
type Comment struct {
	Line int
	Text string
}

// StdlibModule is a module named in a standard-library comment block.
type StdlibModule struct {
	Name string
	Line int
}

// Manifest is a parsed dependency manifest.
type Manifest struct {
	Path          string
	Requirements  []Requirement
	StdlibModules []StdlibModule
	Comments      []Comment
}

// Triples returns the requirement triples in input order.
func (m *Manifest) Triples() []Triple {
	out := make([]Triple, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		out = append(out, r.Triple())
	}
	return out
}

// Lookup returns the first requirement whose normalized name matches.
func (m *Manifest) Lookup(name string) (Requirement, bool) {
	key := Normalize(name)
	for _, r := range m.Requirements {
		if r.Key() == key {
			return r, true
		}
	}
	return Requirement{}, false
}

// LineError reports a line that does not match the specifier grammar.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Normalize applies PEP 503 name normalization.
func Normalize(name string) string {
	return strings.ToLower(normalizePattern.ReplaceAllString(name, "-"))
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if m != nil {
		m.Path = path
	}
	return m, err
}

// Parse reads a manifest. Lines that do not match the grammar are reported
// in the returned error (a *multierror.Error of *LineError); the manifest
// still holds every line that parsed.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	var errs *multierror.Error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inStdlibBlock := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" {
			inStdlibBlock = false
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			text := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			m.Comments = append(m.Comments, Comment{Line: lineNo, Text: text})

			if isStdlibHeader(text) {
				inStdlibBlock = true
				for _, name := range stdlibNames(headerList(text)) {
					m.StdlibModules = append(m.StdlibModules, StdlibModule{Name: name, Line: lineNo})
				}
				continue
			}
			if inStdlibBlock {
				for _, name := range stdlibNames(text) {
					m.StdlibModules = append(m.StdlibModules, StdlibModule{Name: name, Line: lineNo})
				}
			}
			continue
		}

		inStdlibBlock = false
		req, _, err := ParseLine(raw)
		if err != nil {
			var lineErr *LineError
			if le, ok := err.(*LineError); ok {
				lineErr = le
			} else {
				lineErr = &LineError{Text: raw, Reason: err.Error()}
			}
			lineErr.Line = lineNo
			errs = multierror.Append(errs, lineErr)
			continue
		}
		req.Line = lineNo
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}

	return m, errs.ErrorOrNil()
}

// ParseLine parses a single specifier line. ok is false for blank and
// comment-only lines.
func ParseLine(raw string) (Requirement, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Requirement{}, false, nil
	}

	spec, comment := splitComment(trimmed)
	match := specifierPattern.FindStringSubmatch(spec)
	if match == nil {
		return Requirement{}, false, &LineError{Text: raw, Reason: "invalid specifier"}
	}

	req := Requirement{
		Name:       match[1],
		Comparator: match[3],
		Version:    match[4],
		Comment:    comment,
		Raw:        raw,
	}
	if match[2] != "" {
		for _, extra := range strings.Split(match[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}
	if strings.HasSuffix(req.Version, ".*") && req.Comparator != "==" && req.Comparator != "!=" {
		return Requirement{}, false, &LineError{Text: raw, Reason: "wildcard version requires == or !="}
	}

	return req, true, nil
}

// splitComment splits at the first '#' that starts the line or follows a
// space or tab. A '#' glued to the specifier stays in it and fails the
// grammar.
func splitComment(line string) (spec, comment string) {
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
		}
	}
	return strings.TrimSpace(line), ""
}

// Format strips comments and re-emits one specifier per line in input order.
func Format(m *Manifest) string {
	var b strings.Builder
	for _, r := range m.Requirements {
		b.WriteString(r.Specifier())
		b.WriteString("\n")
	}
	return b.String()
}
