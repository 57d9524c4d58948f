// Watch implements a config file watcher that delivers a freshly loaded
// Config after each edit of the watched file. Neither the Phase Sequencer
// nor cmd/harvester calls it: a harvest runs both phases with the Config
// it was started with, and an edited config file takes effect only on the
// next process start.
//
// Grounded on internal/core/mangle_watcher.go's fsnotify.Watcher +
// debounce-ticker shape in the teacher repo, narrowed from its directory
// watch + per-file dispatch down to a single watched config file.
package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one config file and reloads it on write events,
// debounced so a burst of saves from an editor collapses to one reload.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration
	Reloaded chan *Config // buffered 1; newest reload always wins
}

// WatchFile starts watching path's containing directory (fsnotify doesn't
// reliably track a single file across editor save-replace cycles, so the
// directory is watched and events are filtered by basename) and returns a
// Watcher whose Reloaded channel receives a freshly Load()ed Config after
// each debounced write.
func WatchFile(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		path:     path,
		debounce: 300 * time.Millisecond,
		Reloaded: make(chan *Config, 1),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	base := filepath.Base(w.path)
	var pending *time.Timer

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.reload)

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		return // keep running the last good config; next save may fix it
	}
	select {
	case w.Reloaded <- cfg:
	default:
		// Drain the stale pending reload and replace it with the new one.
		select {
		case <-w.Reloaded:
		default:
		}
		w.Reloaded <- cfg
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
