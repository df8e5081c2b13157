package arxiv

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mathmine/internal/latex"
)

var (
	// maxSourceFile caps a single TeX file, whether an archive member or a
	// bare payload.
	maxSourceFile int64 = 16 << 20
	// maxSourceArchive caps the inflated size of a whole e-print.
	maxSourceArchive int64 = 512 << 20
)

// ErrSourceTooLarge is returned when an e-print inflates past the size caps.
var ErrSourceTooLarge = errors.New("source exceeds size limit")

// FetchSource downloads the e-print of paper and returns its LaTeX as one
// flattened document. PDF-only submissions yield ErrNoSource.
func (c *Client) FetchSource(ctx context.Context, paper Paper) (string, error) {
	link := paper.LatexLink
	if c.config.EprintBaseURL != "" || link == "" {
		link = c.eprintBase() + paper.ID
	}

	body, err := c.get(ctx, link)
	if err != nil {
		return "", fmt.Errorf("failed to download source of %s: %w", paper.ID, err)
	}

	text, err := DecodeSource(body)
	if err != nil {
		return "", fmt.Errorf("source of %s: %w", paper.ID, err)
	}
	c.logger.Debug("source fetched", zap.String("id", paper.ID), zap.Int("bytes", len(text)))
	return text, nil
}

func (c *Client) eprintBase() string {
	if c.config.EprintBaseURL != "" {
		return c.config.EprintBaseURL
	}
	return EprintBaseURL
}

// SourceFunc receives each download. It may be called concurrently.
type SourceFunc func(paper Paper, text string, err error) error

// FetchSources downloads the sources of papers with at most workers
// downloads in flight. Per-paper failures go to fn; an error returned by fn
// stops the remaining downloads and is returned.
func (c *Client) FetchSources(ctx context.Context, papers []Paper, workers int, fn SourceFunc) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, paper := range papers {
		paper := paper
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			text, err := c.FetchSource(gctx, paper)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return fn(paper, text, err)
		})
	}
	return g.Wait()
}

// DecodeSource unpacks an e-print payload: gzip'd tarballs, gzip'd single
// files and plain TeX are understood. The payload is inflated as a stream,
// so only TeX members are held in memory.
func DecodeSource(data []byte) (string, error) {
	var r io.Reader = bytes.NewReader(data)
	if isGzip(data) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	br := bufio.NewReaderSize(&cappedReader{r: r, n: maxSourceArchive}, 4096)

	head, err := br.Peek(tarMagicEnd)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to decompress source: %w", err)
	}

	switch {
	case isTar(head):
		files, err := readTar(br)
		if err != nil {
			return "", err
		}
		text, err := latex.Flatten(files)
		if errors.Is(err, latex.ErrNoTexFiles) {
			return "", ErrNoSource
		}
		return text, err
	case bytes.HasPrefix(head, []byte("%PDF")):
		return "", ErrNoSource
	}

	content, err := io.ReadAll(io.LimitReader(br, maxSourceFile+1))
	if err != nil {
		return "", fmt.Errorf("failed to decompress source: %w", err)
	}
	if int64(len(content)) > maxSourceFile {
		return "", fmt.Errorf("%w: single file over %d bytes", ErrSourceTooLarge, maxSourceFile)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: payload is neither an archive nor text", ErrNoSource)
	}
	return string(content), nil
}

// cappedReader fails with ErrSourceTooLarge once more than n bytes are read.
type cappedReader struct {
	r io.Reader
	n int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		var one [1]byte
		if n, err := c.r.Read(one[:]); n == 0 && err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: inflated archive over %d bytes", ErrSourceTooLarge, maxSourceArchive)
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	return n, err
}

// tarMagicEnd is the offset just past the ustar magic in a tar header.
const tarMagicEnd = 262

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func isTar(head []byte) bool {
	return len(head) >= tarMagicEnd && string(head[257:tarMagicEnd]) == "ustar"
}

// readTar collects the .tex members of a tar stream. Members over
// maxSourceFile are skipped without being buffered.
func readTar(r io.Reader) (map[string]string, error) {
	files := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size > maxSourceFile {
			continue
		}
		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if !strings.EqualFold(path.Ext(name), ".tex") {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", hdr.Name, err)
		}
		files[name] = string(content)
	}
	return files, nil
}
