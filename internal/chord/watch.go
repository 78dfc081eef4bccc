package chord

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"chorder/internal/keys"
)

// DefaultDebounce is how long a Watcher waits after the last file event
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a chord table file when it changes. A file that fails to
// load is reported on Errors and the previous table stays in use.
type Watcher struct {
	path     string
	reg      *keys.Registry
	apply    func(*Table)
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer

	// Held for the whole of a reload so Close can wait for it.
	reloading sync.Mutex
}

// Watch starts watching path. apply receives every table that loads
// successfully. It runs on a timer goroutine and must not call Close.
func Watch(path string, reg *keys.Registry, apply func(*Table), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Editors often replace the file, so watch its directory.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		reg:      reg,
		apply:    apply,
		logger:   logger,
		debounce: DefaultDebounce,
		watcher:  fw,
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	name := filepath.Base(w.path)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.reloading.Lock()
	defer w.reloading.Unlock()
	select {
	case <-w.done:
		return
	default:
	}

	t, err := Load(w.path, w.reg)
	if err != nil {
		w.logger.Warn("chord table reload failed", "path", w.path, "error", err)
		w.report(err)
		return
	}
	w.logger.Info("chord table reloaded", "path", w.path, "chords", t.Len())
	w.apply(t)
}

func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Errors reports load and watch failures. Errors are dropped while the
// previous one is unread.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops watching. A pending reload is cancelled and one already
// running is waited for, so apply is never called after Close returns.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()

	w.reloading.Lock()
	w.reloading.Unlock()
	return err
}
