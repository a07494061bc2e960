package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fabrik/internal/event"
	"fabrik/internal/logging"
)

const watchDebounce = 250 * time.Millisecond

// EventValidated and EventInvalid are the bus event types the watcher
// publishes after revalidating a changed definition file.
const (
	EventValidated = "pipeline_validated"
	EventInvalid   = "pipeline_invalid"
	EventRemoved   = "pipeline_removed"
)

// Watcher revalidates pipeline definition files when they change and
// publishes the outcome on the event bus.
type Watcher struct {
	dir    string
	bus    *event.Bus[event.Event]
	logger *logging.Logger

	fs   *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	states  map[string]FileState
	closed  bool
}

// FileState is the last known validity of a watched definition file.
type FileState struct {
	File      string    `json:"file"`
	Pipeline  string    `json:"pipeline,omitempty"`
	Valid     bool      `json:"valid"`
	Problem   string    `json:"problem,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// WatchDir starts watching dir for definition changes. The initial scan
// validates every definition already present.
func WatchDir(dir string, bus *event.Bus[event.Event], logger *logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		bus:     bus,
		logger:  logger,
		fs:      fsWatcher,
		done:    make(chan struct{}),
		pending: map[string]*time.Timer{},
		states:  map[string]FileState{},
	}

	result, err := Lint(dir)
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	problems := map[string]Diagnostic{}
	for _, diagnostic := range result.Diagnostics {
		problems[diagnostic.File] = diagnostic
	}
	for _, file := range result.Files {
		if diagnostic, bad := problems[file]; bad {
			w.record(file, FileState{File: file, Problem: diagnostic.Message, CheckedAt: time.Now().UTC()}, false)
		} else {
			w.revalidate(file, false)
		}
	}

	go w.run()
	return w, nil
}

// States returns the last known validity of every watched file.
func (w *Watcher) States() []FileState {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]FileState, 0, len(w.states))
	for _, state := range w.states {
		out = append(out, state)
	}
	return out
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case fsEvent, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(fsEvent)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("pipeline watcher error", map[string]string{"error": err.Error()})
			}
		}
	}
}

func (w *Watcher) handle(fsEvent fsnotify.Event) {
	if !isDefinitionFile(fsEvent.Name) {
		return
	}
	if fsEvent.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.remove(fsEvent.Name)
		return
	}
	if fsEvent.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.debounce(fsEvent.Name)
}

// debounce coalesces the burst of write events editors produce into one
// revalidation per file.
func (w *Watcher) debounce(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, exists := w.pending[file]; exists {
		timer.Stop()
	}
	w.pending[file] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, file)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.revalidate(file, true)
		}
	})
}

func (w *Watcher) revalidate(file string, publish bool) {
	diagnostics := lintFile(file)
	state := FileState{File: file, Valid: len(diagnostics) == 0, CheckedAt: time.Now().UTC()}
	if definition, err := decodeFile(file); err == nil {
		state.Pipeline = definition.Name
	}
	if !state.Valid {
		state.Problem = diagnostics[0].Message
	}
	w.record(file, state, publish)
}

func (w *Watcher) record(file string, state FileState, publish bool) {
	w.mu.Lock()
	w.states[file] = state
	w.mu.Unlock()

	if w.logger != nil {
		fields := map[string]string{"file": filepath.Base(file)}
		if state.Valid {
			w.logger.Info("pipeline definition valid", fields)
		} else {
			fields["problem"] = state.Problem
			w.logger.Warn("pipeline definition invalid", fields)
		}
	}
	if publish && w.bus != nil {
		eventType := EventValidated
		if !state.Valid {
			eventType = EventInvalid
		}
		w.bus.Publish(event.NewPipelineEvent(file, state.Pipeline, eventType, state.Problem))
	}
}

func (w *Watcher) remove(file string) {
	w.mu.Lock()
	_, known := w.states[file]
	delete(w.states, file)
	w.mu.Unlock()
	if known && w.bus != nil {
		w.bus.Publish(event.NewPipelineEvent(file, "", EventRemoved, ""))
	}
}

func decodeFile(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if isYAMLFile(file) {
		return DecodeYAML(data)
	}
	return DecodeBytes(data)
}
