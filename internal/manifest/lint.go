package manifest

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// Severity grades a lint finding.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Lint rule identifiers.
const (
	RuleConflict       = "conflict"
	RuleDuplicate      = "duplicate"
	RuleStdlibDeclared = "stdlib-declared"
	RuleStdlibShadow   = "stdlib-shadow"
	RuleUnbounded      = "unbounded"
	RuleNoUpperBound   = "no-upper-bound"
)

// Finding is one lint result.
type Finding struct {
	Rule     string
	Severity Severity
	Line     int
	Package  string
	Message  string
}

func (f Finding) Error() string {
	return fmt.Sprintf("line %d: %s [%s]: %s", f.Line, f.Severity, f.Rule, f.Message)
}

// Lint checks the manifest and returns findings ordered by line.
func Lint(m *Manifest) []Finding {
	var findings []Finding

	declaredStdlib := make(map[string]StdlibModule, len(m.StdlibModules))
	for _, mod := range m.StdlibModules {
		if _, ok := declaredStdlib[Normalize(mod.Name)]; !ok {
			declaredStdlib[Normalize(mod.Name)] = mod
		}
	}

	first := make(map[string]Requirement)
	for _, req := range m.Requirements {
		key := req.Key()

		if prev, seen := first[key]; seen {
			if prev.Comparator == req.Comparator && prev.Version == req.Version {
				findings = append(findings, Finding{
					Rule:     RuleDuplicate,
					Severity: SeverityWarning,
					Line:     req.Line,
					Package:  req.Name,
					Message:  fmt.Sprintf("%s is already declared on line %d", req.Name, prev.Line),
				})
			} else {
				findings = append(findings, Finding{
					Rule:     RuleConflict,
					Severity: SeverityError,
					Line:     req.Line,
					Package:  req.Name,
					Message: fmt.Sprintf("%s conflicts with %s on line %d",
						req.Specifier(), prev.Specifier(), prev.Line),
				})
			}
		} else {
			first[key] = req
		}

		if mod, ok := declaredStdlib[key]; ok {
			findings = append(findings, Finding{
				Rule:     RuleStdlibDeclared,
				Severity: SeverityError,
				Line:     req.Line,
				Package:  req.Name,
				Message: fmt.Sprintf("%s is listed as a standard-library module on line %d and must not be installed",
					req.Name, mod.Line),
			})
		} else if KnownStdlib[key] {
			findings = append(findings, Finding{
				Rule:     RuleStdlibShadow,
				Severity: SeverityWarning,
				Line:     req.Line,
				Package:  req.Name,
				Message:  fmt.Sprintf("%s shadows a standard-library module", req.Name),
			})
		}

		switch req.Comparator {
		case "":
			findings = append(findings, Finding{
				Rule:     RuleUnbounded,
				Severity: SeverityWarning,
				Line:     req.Line,
				Package:  req.Name,
				Message:  fmt.Sprintf("%s has no version constraint", req.Name),
			})
		case ">=", ">":
			findings = append(findings, Finding{
				Rule:     RuleNoUpperBound,
				Severity: SeverityInfo,
				Line:     req.Line,
				Package:  req.Name,
				Message:  fmt.Sprintf("%s%s%s only sets a lower bound", req.Name, req.Comparator, req.Version),
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Line < findings[j].Line
	})
	return findings
}

// Filter keeps findings at or above min.
func Filter(findings []Finding, min Severity) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// Validate returns the error-severity findings as a single error, or nil.
func Validate(m *Manifest) error {
	var errs *multierror.Error
	for _, f := range Lint(m) {
		if f.Severity == SeverityError {
			errs = multierror.Append(errs, f)
		}
	}
	return errs.ErrorOrNil()
}
