// Package importer loads entries from files, directories and git
// repositories into the content store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/fingerprint"
	"github.com/conorfennell/prepdeck/internal/gitsource"
	"github.com/conorfennell/prepdeck/internal/interchange"
	"go.uber.org/zap"
)

// Store is the part of the repository the importer writes to.
type Store interface {
	Get(ctx context.Context, id string) (domain.Record, error)
	Add(ctx context.Context, e domain.Entry) (domain.Entry, error)
	Restore(ctx context.Context, rec domain.Record) error
}

// GitSyncer clones or pulls a remote repository into localPath.
type GitSyncer interface {
	Sync(ctx context.Context, url, localPath string) error
}

// ErrNoGit is returned for git targets when no GitSyncer is configured.
var ErrNoGit = errors.New("importer: git sources are not enabled")

// Summary counts the outcome of an import.
type Summary struct {
	Added     int     // new entries with a fresh review state
	Restored  int     // new entries whose review state came from the input
	Unchanged int     // already present with the same content
	Rejected  []error // one per rejected record, naming the file and record
}

// Imported returns the number of entries written.
func (s Summary) Imported() int { return s.Added + s.Restored }

func (s *Summary) merge(o Summary) {
	s.Added += o.Added
	s.Restored += o.Restored
	s.Unchanged += o.Unchanged
	s.Rejected = append(s.Rejected, o.Rejected...)
}

// Importer imports into a Store.
type Importer struct {
	store    Store
	git      GitSyncer
	cacheDir string
	log      *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithGit enables git URL targets, checked out under cacheDir.
func WithGit(g GitSyncer, cacheDir string) Option {
	return func(im *Importer) {
		im.git = g
		im.cacheDir = cacheDir
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.log = l }
}

// New returns an Importer writing to store.
func New(store Store, opts ...Option) *Importer {
	im := &Importer{store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import reads target, which is a file, a directory or a git URL.
// Directories are walked recursively for .csv, .yaml, .yml and .md files;
// files with other extensions are skipped. A rejected record, or a file in a
// directory that cannot be read or decoded, does not stop the import. A
// storage failure does, and the summary so far is returned with it.
func (im *Importer) Import(ctx context.Context, target string) (Summary, error) {
	if gitsource.IsURL(target) {
		if _, err := os.Stat(target); err != nil {
			return im.importGit(ctx, target)
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		return Summary{}, fmt.Errorf("import %s: %w", target, err)
	}
	if info.IsDir() {
		return im.importDir(ctx, target)
	}
	f, ok := interchange.FormatFromPath(target)
	if !ok {
		return Summary{}, fmt.Errorf("import %s: %w", target, interchange.ErrUnknownFormat)
	}
	return im.importFile(ctx, target, f)
}

// ImportReader imports one stream in format f. name labels rejections.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, f interchange.Format, name string) (Summary, error) {
	records, rejected, err := interchange.Decode(r, f)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}

	var sum Summary
	for _, rerr := range rejected {
		sum.Rejected = append(sum.Rejected, fmt.Errorf("%s: %w", name, rerr))
	}
	for _, rec := range records {
		if err := im.apply(ctx, rec, &sum); err != nil {
			var verr *domain.ValidationError
			var derr *domain.DuplicateIDError
			if errors.As(err, &verr) || errors.As(err, &derr) {
				sum.Rejected = append(sum.Rejected, fmt.Errorf("%s: %w", name, &interchange.RecordError{Index: rec.Index, Err: err}))
				continue
			}
			return sum, fmt.Errorf("%s: record %d: %w", name, rec.Index, err)
		}
	}
	im.log.Info("import finished",
		zap.String("source", name),
		zap.Int("added", sum.Added),
		zap.Int("restored", sum.Restored),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("rejected", len(sum.Rejected)),
	)
	return sum, nil
}

func (im *Importer) apply(ctx context.Context, rec interchange.Record, sum *Summary) error {
	existing, err := im.store.Get(ctx, rec.Entry.ID)
	switch {
	case err == nil:
		if fingerprint.Same(existing.Entry, rec.Entry) {
			sum.Unchanged++
			return nil
		}
		return &domain.DuplicateIDError{ID: rec.Entry.ID}
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	if rec.Review != nil {
		if err := im.store.Restore(ctx, domain.Record{Entry: rec.Entry, Review: *rec.Review}); err != nil {
			return err
		}
		sum.Restored++
		return nil
	}
	if _, err := im.store.Add(ctx, rec.Entry); err != nil {
		return err
	}
	sum.Added++
	return nil
}

func (im *Importer) importFile(ctx context.Context, path string, f interchange.Format) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("import %s: %w", path, err)
	}
	defer file.Close()
	return im.ImportReader(ctx, file, f, path)
}

func (im *Importer) importDir(ctx context.Context, root string) (Summary, error) {
	var sum Summary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		f, ok := interchange.FormatFromPath(path)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := im.importFile(ctx, path, f)
		sum.merge(s)
		if err != nil {
			if errors.Is(err, domain.ErrStorage) || ctx.Err() != nil {
				return err
			}
			// An unreadable file is rejected as a whole; the walk goes on.
			im.log.Warn("file rejected", zap.String("path", path), zap.Error(err))
			sum.Rejected = append(sum.Rejected, err)
		}
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("import %s: %w", root, err)
	}
	return sum, nil
}

func (im *Importer) importGit(ctx context.Context, url string) (Summary, error) {
	if im.git == nil {
		return Summary{}, ErrNoGit
	}
	localPath, err := gitsource.LocalPath(im.cacheDir, url)
	if err != nil {
		return Summary{}, err
	}
	if err := im.git.Sync(ctx, url, localPath); err != nil {
		return Summary{}, err
	}
	return im.importDir(ctx, localPath)
}
