package latex

import (
	"errors"
	"path"
	"regexp"
	"sort"
	"strings"
)

// MaxIncludeDepth bounds \input/\include nesting.
const MaxIncludeDepth = 8

// ErrNoTexFiles is returned by Flatten when no .tex file is present.
var ErrNoTexFiles = errors.New("no .tex files in source")

var (
	documentClassRegex = regexp.MustCompile(`\\documentclass`)
	includeRegex       = regexp.MustCompile(`\\(?:input|include)\s*\{([^}]+)\}`)
)

// Flatten merges the .tex files of a multi-file submission into one
// document. files maps slash-separated archive paths to contents. The file
// with \documentclass is the root (shortest path wins on ties), \input and
// \include are inlined recursively, and .tex files nothing referenced are
// appended in path order.
func Flatten(files map[string]string) (string, error) {
	var texPaths []string
	for p := range files {
		if strings.EqualFold(path.Ext(p), ".tex") {
			texPaths = append(texPaths, p)
		}
	}
	if len(texPaths) == 0 {
		return "", ErrNoTexFiles
	}
	sort.Slice(texPaths, func(i, j int) bool {
		if len(texPaths[i]) != len(texPaths[j]) {
			return len(texPaths[i]) < len(texPaths[j])
		}
		return texPaths[i] < texPaths[j]
	})

	root := texPaths[0]
	for _, p := range texPaths {
		if documentClassRegex.MatchString(RemoveComments(files[p])) {
			root = p
			break
		}
	}

	f := &flattener{files: files, used: map[string]bool{}}
	var b strings.Builder
	b.WriteString(f.expand(root, 0))

	sort.Strings(texPaths)
	for _, p := range texPaths {
		if f.used[p] {
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.expand(p, 0))
	}
	return b.String(), nil
}

type flattener struct {
	files map[string]string
	used  map[string]bool
}

func (f *flattener) expand(p string, depth int) string {
	f.used[p] = true
	text := f.files[p]
	if depth >= MaxIncludeDepth {
		return text
	}
	dir := path.Dir(p)

	var b strings.Builder
	last := 0
	for _, loc := range includeRegex.FindAllStringSubmatchIndex(text, -1) {
		lineStart := strings.LastIndexByte(text[:loc[0]], '\n') + 1
		if commentStart(text[lineStart:loc[0]]) >= 0 {
			continue
		}
		resolved, ok := f.resolve(dir, strings.TrimSpace(text[loc[2]:loc[3]]))
		if !ok || f.used[resolved] {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(f.expand(resolved, depth+1))
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func (f *flattener) resolve(dir, target string) (string, bool) {
	candidates := []string{target}
	if path.Ext(target) == "" {
		candidates = append([]string{target + ".tex"}, candidates...)
	}
	for _, c := range candidates {
		for _, p := range []string{path.Join(dir, c), path.Clean(c)} {
			if _, ok := f.files[p]; ok {
				return p, true
			}
		}
	}
	return "", false
}
