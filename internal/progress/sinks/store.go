package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/store"
)

// StoreSink persists run lifecycle and completion points via a
// store.ProgressRepository. CHANGE events are collapsed to the latest one per
// run within a batch to reduce write amplification.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards the batch to the repository in event order. It respects ctx
// deadlines and returns the first repository error wrapped with the operation.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]progress.Event)
	order := make([]uuid.UUID, 0)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.Root, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageChange:
			if _, ok := pending[runID]; !ok {
				order = append(order, runID)
			}
			pending[runID] = evt
		case progress.StageRunDone, progress.StageRunError:
			if last, ok := pending[runID]; ok {
				delete(pending, runID)
				if err := s.record(ctx, last); err != nil {
					return err
				}
			}
			if err := s.complete(ctx, runID, evt); err != nil {
				return err
			}
		}
	}

	for _, runID := range order {
		last, ok := pending[runID]
		if !ok {
			continue
		}
		if err := s.record(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) record(ctx context.Context, evt progress.Event) error {
	if err := s.repo.RecordProgress(ctx, evt.RunUUID(), evt.Name, evt.Completed, evt.TS); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			note = &evt.Note
		}
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, evt.Completed, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run persisted", zap.Stringer("run_id", runID), zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
