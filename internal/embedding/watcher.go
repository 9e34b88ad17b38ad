// Models directory watcher, grounded in the teacher's internal/core/
// mangle_watcher.go (same fsnotify.Watcher lifecycle: Start spawns a
// goroutine loop over Events/Errors, Stop closes it via a stop channel).
// her has no equivalent of the teacher's mangle rule reload -- there's
// nothing to hot-swap the embedder backend to -- so this watcher only
// logs: it exists to tell an operator who set models_dir that the
// directory emptied out or was removed out from under a running process.
package embedding

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/her-retrieval/her/internal/logging"
)

// ModelsWatcher watches cfg.ModelsDir and logs when its contents change,
// so an empty or removed models directory is visible in the embedding
// category log instead of silently falling back to deterministic vectors.
type ModelsWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewModelsWatcher opens an fsnotify watch on dir. Returns (nil, nil) if
// dir is empty: watching is optional, and no config value means nothing to
// watch.
func NewModelsWatcher(dir string) (*ModelsWatcher, error) {
	if dir == "" {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("models_dir watch failed (dir may not exist yet): %v", err)
	}
	return &ModelsWatcher{watcher: w, dir: dir, stopCh: make(chan struct{}), doneCh: make(chan struct{})}, nil
}

// Start runs the watch loop in a goroutine until ctx is cancelled or Stop
// is called.
func (mw *ModelsWatcher) Start(ctx context.Context) {
	if mw == nil {
		return
	}
	go mw.run(ctx)
}

// Stop closes the watcher and waits for the loop goroutine to exit.
func (mw *ModelsWatcher) Stop() {
	if mw == nil {
		return
	}
	close(mw.stopCh)
	<-mw.doneCh
	_ = mw.watcher.Close()
}

func (mw *ModelsWatcher) run(ctx context.Context) {
	defer close(mw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-mw.stopCh:
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			mw.handle(event)
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryEmbedding).Error("models_dir watch error: %v", err)
		}
	}
}

func (mw *ModelsWatcher) handle(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Remove != 0:
		logging.Get(logging.CategoryEmbedding).Warn("models_dir entry removed: %s", event.Name)
	case event.Op&fsnotify.Create != 0:
		logging.EmbeddingDebug("models_dir entry created: %s", event.Name)
	case event.Op&fsnotify.Write != 0:
		logging.EmbeddingDebug("models_dir entry modified: %s", event.Name)
	}
}
