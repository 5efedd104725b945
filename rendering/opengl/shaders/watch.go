package shaders

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors produce on save
const DefaultDebounce = 150 * time.Millisecond

// Watcher signals on Changes when a shader source under its root changes.
// Signals are coalesced, a pending signal is never duplicated.
type Watcher struct {
	log      *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changes  chan struct{}
	done     chan struct{}
}

// NewWatcher starts watching root
func NewWatcher(root string, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating shader watcher")
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watching %s", root)
	}

	w := &Watcher{
		log:      log,
		watcher:  fw,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	log.Info("watching shader sources", zap.String("root", root))
	return w, nil
}

// Changes delivers one value per settled burst of edits
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if isShaderEvent(event) {
				w.log.Debug("shader source changed",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()))
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader watcher error", zap.Error(err))

		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

func isShaderEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Ext(event.Name) {
	case ".vert", ".frag", ".comp":
		return true
	}
	return false
}
