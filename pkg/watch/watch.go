// Package watch runs a callback when watched files change, once per burst of
// file system events.
package watch

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/archspace/archspace/pkg/telemetry"
)

// DefaultDelay is how long a burst of events must be quiet before the
// callback runs.
const DefaultDelay = 500 * time.Millisecond

// Watcher watches files and directories. Files are watched through their
// parent directory so that editors replacing a file on save are still seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *telemetry.Logger
	delay  time.Duration
	filter func(name string) bool
	files  map[string]bool
	dirs   map[string]bool
}

// Option configures a Watcher.
type Option func(w *Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithFilter restricts the files reported from watched directories. Files
// given explicitly are always reported.
func WithFilter(fn func(name string) bool) Option {
	return func(w *Watcher) { w.filter = fn }
}

// WithLogger sets the logger for watcher errors.
func WithLogger(l *telemetry.Logger) Option {
	return func(w *Watcher) { w.logger = l.NewComponentLogger("watch") }
}

// New starts watching paths. Directories are watched recursively.
func New(paths []string, opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fs:     fs,
		logger: telemetry.Nop(),
		delay:  DefaultDelay,
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if err := w.add(filepath.Clean(path)); err != nil {
			_ = fs.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		w.files[path] = true
		if err := w.fs.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	}

	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		w.dirs[p] = true
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// relevant reports whether an event concerns a watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	if w.files[name] {
		return true
	}
	if !w.dirs[filepath.Dir(name)] {
		return false
	}
	return w.filter == nil || w.filter(name)
}

// Run calls fn with the sorted names of the files that changed, after each
// burst of events settles. Errors from fn are logged and do not stop the
// watcher. Run returns when ctx is done and closes the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(changed []string) error) error {
	defer w.fs.Close()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]struct{})
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("file changed")
			pending[filepath.Clean(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			if err := fn(changed); err != nil {
				w.logger.Warn().Err(err).Strs("files", changed).Msg("change handler failed")
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// Close stops watching without waiting for Run.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
