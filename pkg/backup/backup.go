// Package backup copies the persisted flow to a second record on a cron schedule.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Suffix is appended to the flow key to name the backup record.
const Suffix = ".backup"

var ErrScheduleRequired = errors.New("backup schedule is required")

type Loader interface {
	Load(ctx context.Context) *models.FlowState
}

type Saver interface {
	Save(ctx context.Context, state *models.FlowState) bool
	Key() string
}

// Backup snapshots whatever is persisted under the source key. An absent
// source record leaves the previous backup untouched.
type Backup struct {
	source   Loader
	target   Saver
	schedule string
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entryID cron.EntryID
}

func New(source Loader, target Saver, schedule string, logger *slog.Logger) (*Backup, error) {
	if schedule == "" {
		return nil, ErrScheduleRequired
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
	}

	return &Backup{
		source:   source,
		target:   target,
		schedule: schedule,
		logger:   logger,
		tracer:   otelhelper.Tracer("chatflow/backup"),
	}, nil
}

// Run copies the source record to the target once and reports whether a copy was written.
func (b *Backup) Run(ctx context.Context) bool {
	ctx, span := b.tracer.Start(ctx, "backup.run", trace.WithAttributes(attribute.String(otelhelper.BackupKey, b.target.Key())))
	defer span.End()

	state := b.source.Load(ctx)
	if state == nil {
		b.logger.DebugContext(ctx, "Nothing persisted, backup skipped")
		span.SetAttributes(attribute.Bool("chatflow.backup.skipped", true))

		return false
	}

	if !b.target.Save(ctx, state) {
		b.logger.ErrorContext(ctx, "Backup write failed", "target", b.target.Key())
		otelhelper.Fail(span, errors.New("backup write failed"))

		return false
	}

	b.logger.InfoContext(ctx, "Flow backed up", "nodes", len(state.Nodes), "edges", len(state.Edges))

	return true
}

// Start schedules Run until ctx is done or Stop is called.
func (b *Backup) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cron != nil {
		return nil
	}

	b.ctx, b.cancel = context.WithCancel(ctx)

	b.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := b.cron.AddFunc(b.schedule, func() {
		b.Run(b.ctx)
	})
	if err != nil {
		b.cancel()
		b.cron = nil

		return fmt.Errorf("failed to add backup job: %w", err)
	}

	b.entryID = entryID
	b.cron.Start()

	b.logger.Info("Backup scheduled", "cron", b.schedule, "entry_id", entryID)

	return nil
}

// Stop halts the schedule and waits for a running copy to finish.
func (b *Backup) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cron == nil {
		return
	}

	<-b.cron.Stop().Done()
	b.cancel()
	b.cron = nil
}
