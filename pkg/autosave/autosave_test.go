package autosave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []*models.FlowState
	ok    bool
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{ok: true}
}

func (r *recordingSaver) Save(_ context.Context, state *models.FlowState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saved = append(r.saved, state)

	return r.ok
}

func (r *recordingSaver) writes() []*models.FlowState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*models.FlowState(nil), r.saved...)
}

func flowWith(id string) *models.FlowState {
	state := models.NewFlowState()
	state.Nodes = append(state.Nodes, &models.Node{
		ID:   id,
		Type: models.NodeTypeRichCard,
		Data: models.NewRichCardData(id),
	})

	return state
}

const settle = 100 * time.Millisecond

func TestAutosave_DefaultInterval(t *testing.T) {
	t.Parallel()

	a := New(newRecordingSaver())

	assert.Equal(t, time.Second, a.Interval())
	assert.True(t, a.Enabled())

	a = New(newRecordingSaver(), WithInterval(250*time.Millisecond), WithEnabled(false))
	assert.Equal(t, 250*time.Millisecond, a.Interval())
	assert.False(t, a.Enabled())
}

func TestAutosave_OneWritePerQuietWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	saver := newRecordingSaver()
	a := New(saver, WithClock(clock))

	first, second, last := flowWith("a"), flowWith("b"), flowWith("c")

	a.Update(first)
	clock.Advance(500 * time.Millisecond)
	a.Update(second)
	clock.Advance(500 * time.Millisecond)
	a.Update(last)
	clock.Advance(999 * time.Millisecond)

	assert.Never(t, func() bool { return len(saver.writes()) > 0 }, settle, 10*time.Millisecond)
	assert.True(t, a.Pending())

	clock.Advance(time.Millisecond)

	require.Eventually(t, func() bool { return len(saver.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Same(t, last, saver.writes()[0])

	assert.Never(t, func() bool { return len(saver.writes()) > 1 }, settle, 10*time.Millisecond)
	assert.False(t, a.Pending())
}

func TestAutosave_DisableCancelsPendingWrite(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	saver := newRecordingSaver()
	a := New(saver, WithClock(clock))

	a.Update(flowWith("a"))
	a.SetEnabled(false)
	clock.Advance(5 * time.Second)

	assert.Never(t, func() bool { return len(saver.writes()) > 0 }, settle, 10*time.Millisecond)

	// updates while disabled are recorded but not scheduled
	a.Update(flowWith("b"))
	assert.False(t, a.Pending())

	a.SetEnabled(true)
	assert.False(t, a.Pending())

	latest := flowWith("c")
	a.Update(latest)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return len(saver.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Same(t, latest, saver.writes()[0])
}

func TestAutosave_CloseDiscardsPendingWrite(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	saver := newRecordingSaver()
	a := New(saver, WithClock(clock))

	a.Update(flowWith("a"))
	a.Close()
	a.Close()

	a.Update(flowWith("b"))
	clock.Advance(5 * time.Second)

	assert.Never(t, func() bool { return len(saver.writes()) > 0 }, settle, 10*time.Millisecond)
	assert.False(t, a.Flush(t.Context()))
}

func TestAutosave_FlushWritesNowAndCancelsTimer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	saver := newRecordingSaver()

	var hooked []*models.FlowState

	a := New(saver, WithClock(clock), WithOnSave(func(_ context.Context, state *models.FlowState) {
		hooked = append(hooked, state)
	}))

	assert.False(t, a.Flush(t.Context()), "nothing recorded yet")

	state := flowWith("a")
	a.Update(state)

	require.True(t, a.Flush(t.Context()))
	require.Len(t, saver.writes(), 1)
	assert.Same(t, state, saver.writes()[0])
	assert.Equal(t, []*models.FlowState{state}, hooked)

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return len(saver.writes()) > 1 }, settle, 10*time.Millisecond)
}

func TestAutosave_FailedSaveSkipsHook(t *testing.T) {
	t.Parallel()

	saver := newRecordingSaver()
	saver.ok = false

	called := false
	a := New(saver, WithOnSave(func(context.Context, *models.FlowState) { called = true }))

	a.Update(flowWith("a"))
	assert.False(t, a.Flush(t.Context()))
	assert.False(t, called)
	a.Close()
}

func TestAutosave_RealClock(t *testing.T) {
	t.Parallel()

	saver := newRecordingSaver()
	a := New(saver, WithInterval(20*time.Millisecond))

	for i := range 5 {
		a.Update(flowWith(string(rune('a' + i))))
	}

	require.Eventually(t, func() bool { return len(saver.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "e", saver.writes()[0].Nodes[0].ID)
}
