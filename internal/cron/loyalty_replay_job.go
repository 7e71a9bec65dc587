package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

const defaultReplayBatch = 100

type replayDLQRepo interface {
	ListReplayable(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, limit int) ([]models.OutboxDLQ, error)
	MarkReplayed(tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type replayOutboxRepo interface {
	ExistsByIDTx(tx *gorm.DB, id uuid.UUID) (bool, error)
	Requeue(tx *gorm.DB, id uuid.UUID) error
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type LoyaltyReplayJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	DLQ       replayDLQRepo
	Outbox    replayOutboxRepo
	BatchSize int
}

// NewLoyaltyReplayJob builds the job that sends dead-lettered loyalty sync
// events back through the publisher once the outage that parked them is over.
func NewLoyaltyReplayJob(params LoyaltyReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	return &loyaltyReplayJob{
		logg:   params.Logger,
		db:     params.DB,
		dlq:    params.DLQ,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type loyaltyReplayJob struct {
	logg   *logger.Logger
	db     txRunner
	dlq    replayDLQRepo
	outbox replayOutboxRepo
	batch  int
	now    func() time.Time
}

func (j *loyaltyReplayJob) Name() string { return "loyalty-sync-replay" }

func (j *loyaltyReplayJob) Run(ctx context.Context) error {
	var requeued, reinserted int
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		entries, err := j.dlq.ListReplayable(ctx, tx, enums.EventLoyaltySyncRequested, j.batch)
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		now := j.now().UTC()
		for _, entry := range entries {
			exists, err := j.outbox.ExistsByIDTx(tx, entry.EventID)
			if err != nil {
				return fmt.Errorf("lookup outbox %s: %w", entry.EventID, err)
			}
			if exists {
				if err := j.outbox.Requeue(tx, entry.EventID); err != nil {
					return fmt.Errorf("requeue %s: %w", entry.EventID, err)
				}
				requeued++
			} else {
				// retention already pruned the row
				if err := j.outbox.Insert(tx, models.OutboxEvent{
					ID:            entry.EventID,
					EventType:     entry.EventType,
					AggregateType: entry.AggregateType,
					AggregateID:   entry.AggregateID,
					Payload:       entry.Payload,
				}); err != nil {
					return fmt.Errorf("reinsert %s: %w", entry.EventID, err)
				}
				reinserted++
			}
			if err := j.dlq.MarkReplayed(tx, entry.ID, now); err != nil {
				return fmt.Errorf("mark replayed %s: %w", entry.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loyalty replay: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"requeued":   requeued,
		"reinserted": reinserted,
	}), "loyalty sync replay complete")
	return nil
}
