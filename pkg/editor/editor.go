// Package editor keeps one card's local copy, the shared flow payload and the
// persisted record in step while a card is being edited.
package editor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/chatflow/pkg/idgen"
	"github.com/dukex/chatflow/pkg/models"
)

// NodeModel is the slice of the flow model an editor works against.
type NodeModel interface {
	Node(id string) (*models.Node, error)
	UpdateNodeData(id string, fn func(models.CardPayload) error) (models.CardPayload, error)
}

// Patcher writes one node's payload straight into the persisted record.
type Patcher interface {
	PatchNodeData(ctx context.Context, nodeID string, data models.CardPayload) bool
}

type Editor interface {
	NodeID() string
	Close()
}

// Deps are the collaborators every editor shares.
type Deps struct {
	Model   NodeModel
	Patcher Patcher
	IDs     idgen.Generator
	Logger  *slog.Logger
}

type base struct {
	Deps

	nodeID string
	closed atomic.Bool

	// guards the local copy held by the concrete editor
	mu sync.Mutex
	// in-flight uploads
	uploads sync.WaitGroup
}

func (b *base) NodeID() string {
	return b.nodeID
}

// Close detaches the editor. Uploads finishing afterwards are dropped.
func (b *base) Close() {
	b.closed.Store(true)
}

func (b *base) Closed() bool {
	return b.closed.Load()
}

// Wait blocks until in-flight uploads finish.
func (b *base) Wait() {
	b.uploads.Wait()
}

// commit edits the shared payload in place through the model, hands the
// result to setLocal (under the editor lock) for the local copy, then patches
// the persisted record with the same payload.
func (b *base) commit(ctx context.Context, mutate func(models.CardPayload) error, setLocal func(models.CardPayload)) error {
	if b.Closed() {
		return ErrEditorClosed
	}

	updated, err := b.Model.UpdateNodeData(b.nodeID, func(payload models.CardPayload) error {
		err := mutate(payload)
		if err != nil {
			return err
		}

		b.mu.Lock()
		setLocal(payload.ClonePayload())
		b.mu.Unlock()

		return nil
	})
	if err != nil {
		return err
	}

	b.Patcher.PatchNodeData(ctx, b.nodeID, updated)

	return nil
}

// upload reads r into a data URL off the caller's goroutine and applies it
// with set. The returned channel yields the outcome once and is then closed.
func (b *base) upload(r io.Reader, set func(ctx context.Context, url string) error) <-chan error {
	done := make(chan error, 1)

	b.uploads.Add(1)

	go func() {
		defer b.uploads.Done()
		defer close(done)

		url, err := DataURL(r)
		if err != nil {
			b.Logger.Error("Image upload failed", "error", err)
			done <- err

			return
		}

		if b.Closed() {
			b.Logger.Debug("Image upload finished after editor closed")
			done <- ErrEditorClosed

			return
		}

		done <- set(context.Background(), url)
	}()

	return done
}

func (b *base) init(deps Deps, nodeID string) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	b.Deps = deps
	b.Logger = deps.Logger.With("node_id", nodeID)
	b.nodeID = nodeID
}
