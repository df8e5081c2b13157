package manifest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchFunc receives each re-parse of a watched manifest. err carries parse
// errors; m is non-nil whenever the file could be read.
type WatchFunc func(m *Manifest, findings []Finding, err error)

// Watch parses path once, then again on every change until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are still observed.
func Watch(ctx context.Context, path string, logger *zap.Logger, fn WatchFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	relint := func() {
		m, parseErr := ParseFile(abs)
		var findings []Finding
		if m != nil {
			findings = Lint(m)
		}
		fn(m, findings, parseErr)
	}
	relint()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				logger.Debug("manifest changed", zap.String("path", abs), zap.String("op", event.Op.String()))
				relint()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(werr))
		}
	}
}
