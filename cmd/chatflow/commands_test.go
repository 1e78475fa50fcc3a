package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestWatchCommand_NeedsCrossProcessBus(t *testing.T) {
	for _, bus := range []string{"gochannel", "memory"} {
		t.Run(bus, func(t *testing.T) {
			command := &cli.Command{
				Name:     "chatflow",
				Flags:    globalFlags(),
				Commands: []*cli.Command{WatchCommand()},
			}

			err := command.Run(t.Context(), []string{"chatflow", "--database-url", "memory://", "--event-bus", bus, "watch"})
			require.ErrorIs(t, err, ErrLocalEventBus)
			assert.ErrorContains(t, err, "serve --log-events")
		})
	}

	command := &cli.Command{
		Name:     "chatflow",
		Flags:    globalFlags(),
		Commands: []*cli.Command{WatchCommand()},
	}

	err := command.Run(t.Context(), []string{"chatflow", "--database-url", "memory://", "watch", "--type", "flow.nope"})
	assert.ErrorContains(t, err, "unknown event type")
}

func TestSession_WatchEventsLogsPublishedEvents(t *testing.T) {
	var s *session

	command := &cli.Command{
		Name:  "chatflow",
		Flags: globalFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			var err error

			s, err = openSession(ctx, command, "test", quietLogs())

			return err
		},
	}

	require.NoError(t, command.Run(t.Context(), []string{"chatflow", "--database-url", "memory://"}))
	t.Cleanup(func() { s.Close(context.Background()) })

	var out syncBuffer
	s.logger = slog.New(slog.NewTextHandler(&out, nil))

	require.NoError(t, s.watchEvents(t.Context(), nil))

	_, err := s.flow.AddNode(t.Context(), models.NodeTypeRichCard, models.Position{X: 10, Y: 20})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "type=flow.node.added")
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, out.String(), "flow_key=chatbot-flow-state")
}
