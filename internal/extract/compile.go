package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrCompilerNotFound is returned when the LaTeX command is not installed.
var ErrCompilerNotFound = errors.New("latex compiler not found")

const testDocument = `\documentclass{article}
\usepackage{amsmath, amssymb, enumerate, amsfonts, mathrsfs, mathtools}
\usepackage{geometry}
\usepackage{hyperref}
\usepackage{xcolor}
\newtheorem{theorem}{Theorem}
%s
\begin{document}
\section{Theorem Test}

\begin{theorem}
%s
\end{theorem}
\end{document}
`

// Compiler checks that a theorem compiles on its own.
type Compiler struct {
	Command string
	Timeout time.Duration
}

// Check wraps theorem in a minimal article, with preamble (usually the
// paper's macro definitions) before \begin{document}, and compiles it in
// a scratch directory.
func (c *Compiler) Check(ctx context.Context, preamble, theorem string) error {
	command := c.Command
	if command == "" {
		command = "pdflatex"
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCompilerNotFound, command)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp("", "mathmine-compile-")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "theorem.tex")
	if err := os.WriteFile(file, []byte(fmt.Sprintf(testDocument, preamble, theorem)), 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-halt-on-error", "-interaction=nonstopmode", "-output-directory", dir, file)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("compile check: %w", ctx.Err())
		}
		return fmt.Errorf("compile failed: %w: %s", err, lastLines(out.String(), 5))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
