package backup

import (
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores() (*persistence.Store, *persistence.Store) {
	backend := memory.NewPersistence()

	source := persistence.NewStore(backend)
	target := persistence.NewStore(backend, persistence.WithKey(source.Key()+Suffix))

	return source, target
}

func TestNew_ValidatesSchedule(t *testing.T) {
	t.Parallel()

	source, target := stores()

	_, err := New(source, target, "", slog.Default())
	require.ErrorIs(t, err, ErrScheduleRequired)

	_, err = New(source, target, "every tuesday", slog.Default())
	require.ErrorContains(t, err, "invalid cron expression")

	_, err = New(source, target, "*/5 * * * *", slog.Default())
	assert.NoError(t, err)
}

func TestBackup_Run(t *testing.T) {
	t.Parallel()

	source, target := stores()

	b, err := New(source, target, "@hourly", slog.Default())
	require.NoError(t, err)

	assert.False(t, b.Run(t.Context()), "nothing to copy yet")
	assert.Nil(t, target.Load(t.Context()))

	state := &models.FlowState{
		Nodes: []*models.Node{{ID: "a", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("a")}},
		Edges: []*models.Edge{},
	}
	require.True(t, source.Save(t.Context(), state))

	require.True(t, b.Run(t.Context()))
	assert.Equal(t, state, target.Load(t.Context()))

	// clearing the flow keeps the last backup
	source.Clear(t.Context())
	assert.False(t, b.Run(t.Context()))
	assert.Equal(t, state, target.Load(t.Context()))
}

func TestBackup_StartStop(t *testing.T) {
	t.Parallel()

	source, target := stores()

	b, err := New(source, target, "@every 1h", slog.Default())
	require.NoError(t, err)

	require.NoError(t, b.Start(t.Context()))
	require.NoError(t, b.Start(t.Context()))

	b.Stop()
	b.Stop()
}
