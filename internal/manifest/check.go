package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Status is the outcome of checking one requirement against an
// installed environment.
type Status string

const (
	StatusSatisfied Status = "satisfied"
	StatusViolated  Status = "violated"
	StatusMissing   Status = "missing"
	StatusUnknown   Status = "unknown"
)

// CheckResult pairs a requirement with the installed version found for it.
type CheckResult struct {
	Requirement Requirement
	Installed   string
	Status      Status
	Detail      string
}

// Check tests each requirement of m against the pinned versions in
// installed, typically the output of `pip freeze`.
func Check(m *Manifest, installed *Manifest) []CheckResult {
	pinned := make(map[string]string, len(installed.Requirements))
	for _, r := range installed.Requirements {
		if r.Comparator == "==" || r.Comparator == "===" {
			pinned[r.Key()] = r.Version
		}
	}

	results := make([]CheckResult, 0, len(m.Requirements))
	for _, req := range m.Requirements {
		res := CheckResult{Requirement: req}
		version, ok := pinned[req.Key()]
		if !ok {
			res.Status = StatusMissing
			results = append(results, res)
			continue
		}
		res.Installed = version

		satisfied, err := Satisfies(req, version)
		switch {
		case err != nil:
			res.Status = StatusUnknown
			res.Detail = err.Error()
		case satisfied:
			res.Status = StatusSatisfied
		default:
			res.Status = StatusViolated
			res.Detail = fmt.Sprintf("%s does not satisfy %s%s", version, req.Comparator, req.Version)
		}
		results = append(results, res)
	}
	return results
}

// Satisfies reports whether version meets the requirement's constraint.
func Satisfies(req Requirement, version string) (bool, error) {
	if req.Comparator == "" {
		return true, nil
	}
	if req.Comparator == "===" {
		return version == req.Version, nil
	}

	v, err := coerce(version)
	if err != nil {
		return false, fmt.Errorf("installed version %q: %w", version, err)
	}

	expr, err := constraintExpr(req.Comparator, req.Version)
	if err != nil {
		return false, err
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return false, fmt.Errorf("constraint %q: %w", expr, err)
	}
	return c.Check(v), nil
}

func constraintExpr(comparator, version string) (string, error) {
	if strings.HasSuffix(version, ".*") {
		prefix := strings.TrimSuffix(version, ".*")
		parts := strings.Split(prefix, ".")
		upper, err := bump(parts, len(parts)-1)
		if err != nil {
			return "", err
		}
		lower := strings.Join(pad(parts), ".")
		if comparator == "!=" {
			return fmt.Sprintf("< %s || >= %s", lower, upper), nil
		}
		return fmt.Sprintf(">= %s, < %s", lower, upper), nil
	}

	base, err := coerce(version)
	if err != nil {
		return "", fmt.Errorf("required version %q: %w", version, err)
	}

	switch comparator {
	case "==":
		return "= " + base.String(), nil
	case "!=", ">=", "<=", ">", "<":
		return comparator + " " + base.String(), nil
	case "~=":
		parts := numericParts(version)
		if len(parts) < 2 {
			return "", fmt.Errorf("~= needs at least two release components, got %q", version)
		}
		upper, err := bump(parts, len(parts)-2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(">= %s, < %s", base.String(), upper), nil
	}
	return "", fmt.Errorf("unsupported comparator %q", comparator)
}

// coerce turns a dotted PEP 440 release into a semantic version using the
// first three numeric components.
func coerce(version string) (*semver.Version, error) {
	parts := numericParts(version)
	if len(parts) == 0 {
		return nil, fmt.Errorf("no numeric release segment")
	}
	return semver.NewVersion(strings.Join(pad(parts), "."))
}

func numericParts(version string) []string {
	var parts []string
	for _, p := range strings.Split(version, ".") {
		digits := leadingDigits(p)
		if digits == "" {
			break
		}
		parts = append(parts, digits)
		if len(digits) != len(p) {
			break
		}
	}
	return parts
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func pad(parts []string) []string {
	out := make([]string, 3)
	for i := range out {
		if i < len(parts) {
			out[i] = parts[i]
		} else {
			out[i] = "0"
		}
	}
	return out
}

// bump increments component idx and zeroes everything after it.
func bump(parts []string, idx int) (string, error) {
	out := pad(parts)
	if idx > 2 {
		idx = 2
	}
	n, err := strconv.Atoi(out[idx])
	if err != nil {
		return "", fmt.Errorf("invalid version component %q", out[idx])
	}
	out[idx] = strconv.Itoa(n + 1)
	for i := idx + 1; i < len(out); i++ {
		out[i] = "0"
	}
	return strings.Join(out, "."), nil
}
