package editor

import (
	"fmt"
	"sync"

	"github.com/dukex/chatflow/pkg/flow"
)

// Workspace tracks the editors open on the canvas, at most one per node.
// Feed it model events through HandleEvent so editors of removed nodes,
// or of a replaced flow, are closed.
type Workspace struct {
	deps Deps

	mu      sync.Mutex
	editors map[string]Editor
}

func NewWorkspace(deps Deps) *Workspace {
	return &Workspace{
		deps:    deps,
		editors: make(map[string]Editor),
	}
}

// RichCard returns the open editor for nodeID, opening one if needed.
func (w *Workspace) RichCard(nodeID string) (*RichCard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if open, ok := w.editors[nodeID]; ok {
		if e, ok := open.(*RichCard); ok {
			return e, nil
		}

		return nil, fmt.Errorf("%w: %s", ErrWrongCardType, nodeID)
	}

	e, err := OpenRichCard(w.deps, nodeID)
	if err != nil {
		return nil, err
	}

	w.editors[nodeID] = e

	return e, nil
}

// Carousel returns the open editor for nodeID, opening one if needed.
func (w *Workspace) Carousel(nodeID string) (*Carousel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if open, ok := w.editors[nodeID]; ok {
		if e, ok := open.(*Carousel); ok {
			return e, nil
		}

		return nil, fmt.Errorf("%w: %s", ErrWrongCardType, nodeID)
	}

	e, err := OpenCarousel(w.deps, nodeID)
	if err != nil {
		return nil, err
	}

	w.editors[nodeID] = e

	return e, nil
}

// Release closes the editor for nodeID, if any.
func (w *Workspace) Release(nodeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.editors[nodeID]; ok {
		e.Close()
		delete(w.editors, nodeID)
	}
}

// OpenCount reports how many editors are open.
func (w *Workspace) OpenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.editors)
}

// HandleEvent is a flow.Listener.
func (w *Workspace) HandleEvent(event flow.Event) {
	switch event.Kind {
	case flow.EventReplaced:
		w.Close()
	case flow.EventStructure:
		for _, id := range event.RemovedNodes {
			w.Release(id)
		}
	}
}

// Close closes every open editor.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, e := range w.editors {
		e.Close()
		delete(w.editors, id)
	}
}
