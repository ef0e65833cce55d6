package dev

import (
	"path/filepath"
	"time"

	"github.com/vango-dev/tapas/internal/config"
)

// ProjectFiles returns the files a project is loaded from: tapas.json,
// the document, the descriptor file and the state file.
func ProjectFiles(cfg *config.Config) []string {
	paths := []string{cfg.Path(), cfg.DocumentPath(), cfg.BindingsPath()}
	if cfg.StateFile != "" {
		paths = append(paths, resolvePath(cfg.Dir(), cfg.StateFile))
	}
	return unique(paths)
}

// AssetDirs returns the directories served next to the page.
func AssetDirs(cfg *config.Config) []string {
	return unique([]string{cfg.StaticDir()})
}

// NewProjectWatcher watches the files and assets of cfg.
func NewProjectWatcher(cfg *config.Config, interval time.Duration) *Watcher {
	return NewWatcher(WatcherConfig{
		Project:  ProjectFiles(cfg),
		Assets:   AssetDirs(cfg),
		Interval: interval,
	})
}

func unique(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func resolvePath(projectDir, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
