package imageindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"aictl/internal/logging"
	"aictl/internal/utils"
)

// Analysis is what the vision service found in an image.
type Analysis struct {
	People  []string
	Objects []string
	Scene   string
}

// Analyzer runs detection over an image. Implemented by the DeepStack
// integration; nil results are fine when a capability is unavailable.
type Analyzer interface {
	Analyze(ctx context.Context, imagePath string) (Analysis, error)
}

// Stats summarizes one indexing run.
type Stats struct {
	Scanned int
	Indexed int
	Skipped int
	Removed int
	Failed  int
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// IsImageFile reports whether a path has a recognized image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Indexer walks directories, describes and analyzes each image, and keeps
// the vector store and manifest in sync with the filesystem.
type Indexer struct {
	store     *Store
	manifest  *Manifest
	describer Describer
	analyzer  Analyzer
	logger    logging.Logger
	workers   int
}

// IndexerConfig wires an Indexer.
type IndexerConfig struct {
	Store     *Store
	Manifest  *Manifest
	Describer Describer
	Analyzer  Analyzer // optional
	Workers   int
	Logger    logging.Logger
}

// NewIndexer builds an indexer. Workers defaults to 4.
func NewIndexer(config IndexerConfig) *Indexer {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("imageindex")
	}
	return &Indexer{
		store:     config.Store,
		manifest:  config.Manifest,
		describer: config.Describer,
		analyzer:  config.Analyzer,
		logger:    logger,
		workers:   config.Workers,
	}
}

// Index scans the given roots, indexes new and changed images, and prunes
// entries whose files disappeared. The manifest is saved before returning,
// also on error, so partial progress survives.
func (ix *Indexer) Index(ctx context.Context, roots []string) (Stats, error) {
	var stats Stats
	var statsMu sync.Mutex

	files, err := ix.collectFiles(roots)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			outcome, err := ix.indexOne(gctx, file.path, file.mtime)
			statsMu.Lock()
			defer statsMu.Unlock()
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				stats.Failed++
				ix.logger.Error("Indexing %s failed: %v", file.path, err)
			case outcome == outcomeSkipped:
				stats.Skipped++
			default:
				stats.Indexed++
			}
			return nil
		})
	}

	runErr := g.Wait()

	removed, pruneErr := ix.pruneStale(ctx, roots)
	stats.Removed = removed

	if saveErr := ix.manifest.Save(); saveErr != nil {
		ix.logger.Error("Saving manifest failed: %v", saveErr)
		if runErr == nil && pruneErr == nil {
			runErr = saveErr
		}
	}
	if runErr == nil {
		runErr = pruneErr
	}
	return stats, runErr
}

type candidate struct {
	path  string
	mtime int64
}

func (ix *Indexer) collectFiles(roots []string) ([]candidate, error) {
	var files []candidate
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !IsImageFile(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, candidate{path: path, mtime: info.ModTime().Unix()})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	return files, nil
}

type indexOutcome int

const (
	outcomeIndexed indexOutcome = iota
	outcomeSkipped
)

func (ix *Indexer) indexOne(ctx context.Context, path string, mtime int64) (indexOutcome, error) {
	if entry, ok := ix.manifest.Get(path); ok && entry.MTimeUnix == mtime {
		return outcomeSkipped, nil
	}

	desc, err := ix.describer.Describe(ctx, path)
	if err != nil {
		return outcomeIndexed, err
	}

	var analysis Analysis
	if ix.analyzer != nil {
		analysis, err = ix.analyzer.Analyze(ctx, path)
		if err != nil {
			// Vision detection is enrichment. The description alone is
			// still worth indexing.
			ix.logger.Warn("Analysis of %s failed: %v", path, err)
			analysis = Analysis{}
		}
	}

	meta := ImageMetadata{
		Path:        path,
		MTimeUnix:   mtime,
		Description: desc.Text,
		Keywords:    desc.Keywords,
		People:      analysis.People,
		Objects:     analysis.Objects,
		Scene:       analysis.Scene,
	}
	if err := ix.store.Add(ctx, []Document{meta.Document()}); err != nil {
		return outcomeIndexed, err
	}

	ix.manifest.Set(path, ManifestEntry{MTimeUnix: mtime, DocID: DocID(path)})
	ix.logger.Debug("Indexed %s", path)
	return outcomeIndexed, nil
}

// pruneStale removes manifest entries under the scanned roots whose files
// no longer exist.
func (ix *Indexer) pruneStale(ctx context.Context, roots []string) (int, error) {
	absRoots := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		absRoots = append(absRoots, abs)
	}

	removed := 0
	for _, path := range ix.manifest.Paths() {
		if !underAnyRoot(path, absRoots) {
			continue
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		entry, ok := ix.manifest.Get(path)
		if !ok {
			continue
		}
		if err := ix.store.Delete(ctx, entry.DocID); err != nil {
			return removed, err
		}
		ix.manifest.Remove(path)
		removed++
		ix.logger.Debug("Removed stale entry %s", path)
	}
	return removed, nil
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
