package supervisor

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// frameWatcher calls onChange whenever the number of files in a directory
// changes
type frameWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	logger   zerolog.Logger
	onChange func(count int)

	lastCount int
	done      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newFrameWatcher(dir string, logger zerolog.Logger, onChange func(count int)) (*frameWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &frameWatcher{
		watcher:  watcher,
		dir:      dir,
		logger:   logger,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.eventLoop()
	return w, nil
}

// Stop closes the watcher and waits until the event loop has returned, so
// no onChange call is running once Stop returns
func (w *frameWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to close frames watcher")
		}
	})
	<-w.stopped
}

func (w *frameWatcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Frames watcher error")
		}
	}
}

func (w *frameWatcher) handleEvent() {
	select {
	case <-w.done:
		return
	default:
	}

	count, err := countFrames(w.dir)
	if err != nil {
		w.logger.Error().Err(err).Str("directory", w.dir).Msg("Failed to count frames")
		return
	}
	if count == w.lastCount {
		return
	}
	w.lastCount = count
	w.onChange(count)
}
