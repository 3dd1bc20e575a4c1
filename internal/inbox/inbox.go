// Package inbox imports HTML files dropped into a directory. Each file's
// base name without extension becomes the design id, so saving
// poster.html again re-imports design "poster".
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/sowilo/internal/checksum"
	"github.com/starford/sowilo/internal/workspace"
)

const debounce = 200 * time.Millisecond

// Callback is called after a file has been imported into designID.
type Callback func(designID, path string)

// Ledger remembers the checksum of each path's last import, so an
// unchanged file is not imported again after a restart.
type Ledger interface {
	ImportChecksum(ctx context.Context, path string) (string, error)
	SetImportChecksum(ctx context.Context, path, designID, sum string) error
	DeleteImport(ctx context.Context, path string) error
}

// DesignID maps a file path to the design it is imported into.
func DesignID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Watch imports every HTML file already under dir, then watches dir and
// its subdirectories until ctx is cancelled. Bursts of writes to the same
// file are collapsed into one import. Removing a file leaves its design
// untouched. Files whose checksum matches their last import in ledger are
// skipped.
func Watch(ctx context.Context, ws *workspace.Workspace, ledger Ledger, dir string, logger *slog.Logger, cb Callback) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}

	imp := &importer{ws: ws, ledger: ledger, logger: logger, cb: cb}
	imp.scan(ctx, dir)

	logger.Info("inbox: started", slog.String("dir", dir))

	dirty := map[string]struct{}{}
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(path string) {
		dirty[path] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			for path := range dirty {
				imp.importFile(ctx, path)
			}
			clear(dirty)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					imp.scan(ctx, ev.Name)
					continue
				}
			}

			if !isHTML(ev.Name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(dirty, ev.Name)
				if err := ledger.DeleteImport(ctx, ev.Name); err != nil {
					logger.Warn("inbox: forget import failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

type importer struct {
	ws     *workspace.Workspace
	ledger Ledger
	logger *slog.Logger
	cb     Callback
}

func (imp *importer) scan(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isHTML(path) {
			return nil
		}
		imp.importFile(ctx, path)
		return nil
	})
}

func (imp *importer) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		imp.logger.Warn("inbox: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	sum := checksum.Sum(data)
	prev, err := imp.ledger.ImportChecksum(ctx, path)
	if err != nil {
		imp.logger.Warn("inbox: checksum lookup failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if prev == sum {
		return
	}

	id := DesignID(path)
	ed, err := imp.ws.Open(ctx, id)
	if err != nil {
		imp.logger.Warn("inbox: open design failed", slog.String("design_id", id), slog.String("error", err.Error()))
		return
	}
	if _, err := ed.ImportHTML(string(data)); err != nil {
		imp.logger.Warn("inbox: import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := ed.Save(ctx); err != nil {
		imp.logger.Warn("inbox: save failed", slog.String("design_id", id), slog.String("error", err.Error()))
		return
	}
	if err := imp.ledger.SetImportChecksum(ctx, path, id, sum); err != nil {
		imp.logger.Warn("inbox: record import failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	imp.logger.Debug("inbox: imported", slog.String("path", path), slog.String("design_id", id))
	if imp.cb != nil {
		imp.cb(id, path)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
