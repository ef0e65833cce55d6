package dev

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the watcher waits after a notification before
// scanning, so that a burst of writes is reported once.
const settleDelay = 15 * time.Millisecond

// ChangeType represents the type of file change.
type ChangeType int

const (
	// ChangeProject is a change to tapas.json, the document, the
	// descriptors or the state file. The project must be reloaded.
	ChangeProject ChangeType = iota

	// ChangeStyle is a changed stylesheet among the assets.
	ChangeStyle

	// ChangeAsset is any other changed asset.
	ChangeAsset
)

func (t ChangeType) String() string {
	switch t {
	case ChangeProject:
		return "project"
	case ChangeStyle:
		return "style"
	default:
		return "asset"
	}
}

// Change represents a detected file change.
type Change struct {
	Path string
	Type ChangeType
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Project lists the files whose change reloads the project.
	Project []string

	// Assets lists directories served to the browser.
	Assets []string

	// Ignore patterns to skip (globs or path segments).
	Ignore []string

	// Interval is the polling period. Changes seen in one poll are
	// reported together.
	Interval time.Duration

	// PollOnly disables file system notifications.
	PollOnly bool
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"*.tmp",
	"*.swp",
	"*~",
}

type stamp struct {
	mod  time.Time
	size int64
}

// Watcher watches project files and asset directories for changes. File
// system notifications trigger an early scan; polling catches whatever
// the notifications miss.
type Watcher struct {
	config   WatcherConfig
	project  map[string]bool
	onChange func(Change)

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	stamps    map[string]stamp
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Interval == 0 {
		config.Interval = 250 * time.Millisecond
	}
	if config.Ignore == nil {
		config.Ignore = DefaultIgnore
	}
	project := make(map[string]bool, len(config.Project))
	for _, p := range config.Project {
		project[filepath.Clean(p)] = true
	}
	return &Watcher{
		config:  config,
		project: project,
		ready:   make(chan struct{}),
		stamps:  make(map[string]stamp),
	}
}

// OnChange sets the callback for file changes. It runs on the watcher
// goroutine.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Ready is closed once the initial scan has completed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start polls until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	w.scan()
	w.readyOnce.Do(func() { close(w.ready) })

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	notify := w.openNotify()
	if notify != nil {
		defer notify.Close()
		events, errs = notify.Events, notify.Errors
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.setStopped()
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			w.report(w.scan())
		case <-settle.C:
			w.report(w.scan())
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.shouldIgnore(ev.Name) {
					_ = notify.Add(ev.Name)
				}
			}
			settle.Reset(settleDelay)
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}

// openNotify subscribes to the directories holding the project files and
// to every asset directory. It returns nil when notifications are
// unavailable.
func (w *Watcher) openNotify() *fsnotify.Watcher {
	if w.config.PollOnly {
		return nil
	}
	n, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	dirs := make(map[string]bool)
	for _, p := range w.config.Project {
		dirs[filepath.Dir(p)] = true
	}
	for _, root := range w.config.Assets {
		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if p != root && w.shouldIgnore(p) {
				return filepath.SkipDir
			}
			dirs[p] = true
			return nil
		})
	}
	for dir := range dirs {
		// Missing directories are still polled.
		_ = n.Add(dir)
	}
	return n
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

func (w *Watcher) setStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// scan walks every watched path, records the file stamps and returns the
// files that were added, modified or removed since the previous scan.
func (w *Watcher) scan() []Change {
	seen := make(map[string]stamp, len(w.stamps))
	roots := append(append([]string(nil), w.config.Project...), w.config.Assets...)
	for _, root := range roots {
		filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if p != root && w.shouldIgnore(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.shouldIgnore(p) {
				seen[filepath.Clean(p)] = stamp{mod: info.ModTime(), size: info.Size()}
			}
			return nil
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var changes []Change
	for p, st := range seen {
		old, ok := w.stamps[p]
		if !ok || !st.mod.Equal(old.mod) || st.size != old.size {
			changes = append(changes, Change{Path: p, Type: w.classify(p)})
		}
	}
	for p := range w.stamps {
		if _, ok := seen[p]; !ok {
			changes = append(changes, Change{Path: p, Type: w.classify(p)})
		}
	}
	w.stamps = seen
	return changes
}

// report calls the callback once per change type, project changes first:
// a reload makes any asset change moot.
func (w *Watcher) report(changes []Change) {
	w.mu.Lock()
	callback := w.onChange
	w.mu.Unlock()
	if callback == nil || len(changes) == 0 {
		return
	}

	first := make(map[ChangeType]Change)
	for _, c := range changes {
		if prev, ok := first[c.Type]; !ok || c.Path < prev.Path {
			first[c.Type] = c
		}
	}
	if c, ok := first[ChangeProject]; ok {
		callback(c)
		return
	}
	for _, t := range []ChangeType{ChangeStyle, ChangeAsset} {
		if c, ok := first[t]; ok {
			callback(c)
		}
	}
}

func (w *Watcher) classify(p string) ChangeType {
	if w.project[p] {
		return ChangeProject
	}
	return classifyChange(p)
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		if name == pattern {
			return true
		}

		hasPathSep := strings.Contains(pattern, "/") || strings.Contains(pattern, "\\")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		if hasGlob {
			if hasPathSep {
				if matched, _ := path.Match(filepath.ToSlash(pattern), normalized); matched {
					return true
				}
			} else if matched, _ := filepath.Match(pattern, name); matched {
				return true
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, filepath.ToSlash(pattern)) {
				return true
			}
			continue
		}

		if pathHasSegment(normalized, pattern) {
			return true
		}
	}

	return false
}

func pathHasSegment(path, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range splitPathSegments(path) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(path, pattern string) bool {
	pathParts := splitPathSegments(path)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

// classifyChange determines the type of an asset change from its
// extension.
func classifyChange(path string) ChangeType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css":
		return ChangeStyle
	default:
		return ChangeAsset
	}
}
