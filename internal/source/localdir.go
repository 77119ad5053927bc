// Package source implements the non-website source driver contracts
// of §4.8: local directory / code tree walking, ticket-stream
// pagination, and the website driver's delegation to internal/crawl.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultCodeExtensions is the code driver's include-extension default
// (§4.8: "include has defaults for the code driver").
var defaultCodeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".rb": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".md": true, ".json": true, ".yaml": true, ".yml": true,
}

// FileItem is one file discovered by a walk, ready for chunking.
type FileItem struct {
	Path    string // path relative to Root
	Content string
	Size    int64
	ModTime time.Time
}

// WalkConfig configures a local-directory or code-tree walk.
type WalkConfig struct {
	Root              string
	Recursive         bool
	IncludeExtensions []string // empty + IsCode => defaultCodeExtensions; empty otherwise => all
	ExcludeExtensions []string
	MaxSize           int64 // bytes; 0 means no limit
	IsCode            bool

	// AllowedFiles restricts the walk to this set (relative paths),
	// implementing incremental git-diff mode. Nil means "no restriction".
	AllowedFiles map[string]struct{}
	// MTimeCutoff, if non-zero, skips files not modified after it —
	// the other half of incremental git-diff mode.
	MTimeCutoff time.Time
}

// Walk streams every qualifying file under cfg.Root. The returned seen
// set holds the relative path of every emitted file (files skipped by
// extension, size, allow-list or mtime are not recorded), for
// obsolete-file cleanup.
func Walk(ctx context.Context, cfg WalkConfig, emit func(FileItem) error) (seen map[string]struct{}, err error) {
	seen = make(map[string]struct{})
	include := includeSet(cfg)
	exclude := excludeSet(cfg.ExcludeExtensions)

	walkFn := func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			if !cfg.Recursive && path != cfg.Root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(cfg.Root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		ext := strings.ToLower(filepath.Ext(path))
		if exclude[ext] {
			return nil
		}
		if include != nil && !include[ext] {
			return nil
		}
		if cfg.AllowedFiles != nil {
			if _, ok := cfg.AllowedFiles[rel]; !ok {
				return nil
			}
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if cfg.MaxSize > 0 && info.Size() > cfg.MaxSize {
			return nil
		}
		if !cfg.MTimeCutoff.IsZero() && !info.ModTime().After(cfg.MTimeCutoff) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}

		seen[rel] = struct{}{}
		return emit(FileItem{Path: rel, Content: string(data), Size: info.Size(), ModTime: info.ModTime()})
	}

	if walkErr := filepath.WalkDir(cfg.Root, walkFn); walkErr != nil {
		return seen, walkErr
	}
	return seen, nil
}

func includeSet(cfg WalkConfig) map[string]bool {
	if len(cfg.IncludeExtensions) > 0 {
		m := make(map[string]bool, len(cfg.IncludeExtensions))
		for _, e := range cfg.IncludeExtensions {
			m[strings.ToLower(e)] = true
		}
		return m
	}
	if cfg.IsCode {
		return defaultCodeExtensions
	}
	return nil // nil means "no include filter": accept everything not excluded
}

func excludeSet(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	return m
}
