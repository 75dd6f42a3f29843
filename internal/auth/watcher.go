package auth

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"csgate/pkg/logging"
)

// TokenWatcher watches the token file for external changes so a running
// gateway picks up a login or logout performed by another process (e.g. the
// CLI) without a restart.
//
// The watch is placed on the parent directory because the file itself may not
// exist yet and is replaced wholesale on every save.
type TokenWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	done     chan struct{}
}

// NewTokenWatcher starts watching the given token file path. onChange is
// invoked from the watcher goroutine on every create, write, rename, or
// removal of the file.
func NewTokenWatcher(path string, onChange func()) (*TokenWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &TokenWatcher{
		watcher:  watcher,
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *TokenWatcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				logging.Debug("Auth", "Token file changed on disk (%s)", event.Op)
				w.onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Auth", "Token watcher error: %v", err)
		}
	}
}

// Close stops the watcher and waits for the event loop to drain.
func (w *TokenWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
