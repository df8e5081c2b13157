// Package progress draws counted progress bars on interactive terminals.
package progress

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

const barWidth = 20

// Bar is a counted progress bar. The zero value discards output.
type Bar struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// New returns a bar drawing on stderr when it is a terminal and
// MATHMINE_PROGRESS is not "false".
func New() *Bar {
	writer := io.Discard
	disabled := strings.ToLower(os.Getenv("MATHMINE_PROGRESS")) == "false"
	if !disabled && isatty.IsTerminal(os.Stderr.Fd()) {
		writer = os.Stderr
	}
	return NewWithWriter(writer)
}

// NewWithWriter returns a bar drawing on w.
func NewWithWriter(w io.Writer) *Bar {
	return &Bar{writer: w}
}

// Start begins a bar of count steps.
func (b *Bar) Start(count int, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bar = progressbar.NewOptions(count,
		progressbar.OptionSetWriter(b.writerOrDiscard()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
}

// Describe changes the label of a running bar.
func (b *Bar) Describe(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Describe("[cyan]" + label + "[reset]")
	}
}

// Add advances the bar by n steps.
func (b *Bar) Add(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Add(n)
	}
}

// Stop finishes the bar.
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		_, _ = io.WriteString(b.writerOrDiscard(), "\n")
	}
	b.bar = nil
}

func (b *Bar) writerOrDiscard() io.Writer {
	if b.writer == nil {
		return io.Discard
	}
	return b.writer
}
