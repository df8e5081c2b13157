package manifest

import (
	"regexp"
	"strings"
)

var moduleNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Words that show up in standard-library notes but are never module names.
var stdlibNoteWords = map[string]bool{
	"standard": true, "library": true, "modules": true, "module": true,
	"no": true, "install": true, "installation": true, "needed": true,
	"required": true, "are": true, "is": true, "the": true, "part": true,
	"of": true, "these": true, "and": true, "built": true, "builtin": true,
	"in": true, "python": true, "for": true, "note": true, "also": true,
	"used": true, "uses": true, "we": true, "from": true,
}

// KnownStdlib lists Python standard-library modules that also appear as
// package names on PyPI, usually as stale backports.
var KnownStdlib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true, "asyncio": true,
	"base64": true, "bisect": true, "bz2": true, "calendar": true, "cmath": true,
	"codecs": true, "collections": true, "concurrent": true, "configparser": true,
	"contextlib": true, "copy": true, "csv": true, "ctypes": true, "dataclasses": true,
	"datetime": true, "decimal": true, "difflib": true, "email": true, "enum": true,
	"fileinput": true, "fnmatch": true, "fractions": true, "functools": true,
	"getpass": true, "glob": true, "gzip": true, "hashlib": true, "heapq": true,
	"html": true, "http": true, "importlib": true, "inspect": true, "io": true,
	"ipaddress": true, "itertools": true, "json": true, "locale": true,
	"logging": true, "lzma": true, "math": true, "mmap": true,
	"multiprocessing": true, "numbers": true, "operator": true, "os": true,
	"pathlib": true, "pickle": true, "platform": true, "pprint": true,
	"queue": true, "random": true, "re": true, "secrets": true, "select": true,
	"shlex": true, "shutil": true, "signal": true, "socket": true, "sqlite3": true,
	"ssl": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tarfile": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "tkinter": true,
	"tomllib": true, "traceback": true, "typing": true, "unittest": true,
	"urllib": true, "uuid": true, "venv": true, "warnings": true, "weakref": true,
	"xml": true, "zipfile": true, "zlib": true,
}

func isStdlibHeader(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "standard library") || strings.Contains(lower, "standard-library")
}

// headerList returns the part of a header line that can carry module names:
// everything after the first colon, or the whole line when there is none.
func headerList(text string) string {
	if idx := strings.Index(text, ":"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// stdlibNames picks module names out of a comment: comma separated pieces,
// first word of each, lowercase identifiers only.
func stdlibNames(text string) []string {
	var names []string
	for _, piece := range strings.Split(text, ",") {
		piece = strings.TrimSpace(piece)
		piece = strings.TrimLeft(piece, "-*• ")
		fields := strings.Fields(piece)
		if len(fields) == 0 {
			continue
		}
		word := strings.Trim(fields[0], ".:;()")
		if !moduleNamePattern.MatchString(word) || stdlibNoteWords[word] {
			continue
		}
		names = append(names, word)
	}
	return names
}
