package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// Failure describes one intent that could not be applied.
type Failure struct {
	ExternalKey string
	Statement   int
	Error       string
}

// Report summarizes one executor run. Applied + AlreadyDone + Missing +
// Failed always equals Total.
type Report struct {
	Total       int
	Applied     int
	AlreadyDone int
	Missing     int
	Failed      int
	Failures    []Failure
	Duration    time.Duration
}

// Executor applies correction scripts against the ticket store in bounded
// chunks. Runs are resumable: re-running a partially applied script skips
// every intent whose target rows already hold the desired values, and a
// failing intent never stops the run.
type Executor struct {
	tickets repository.TicketRepository
	cfg     config.BatchConfig
	logger  *zap.Logger
}

// NewExecutor constructs the executor.
func NewExecutor(tickets repository.TicketRepository, cfg config.BatchConfig, logger *zap.Logger) *Executor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 250
	}
	return &Executor{tickets: tickets, cfg: cfg, logger: logger}
}

// Run parses and applies a correction script.
func (e *Executor) Run(ctx context.Context, script string) (*Report, error) {
	intents, err := ParseScript(script)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, intents)
}

// Apply executes parsed intents chunk by chunk.
func (e *Executor) Apply(ctx context.Context, intents []Intent) (*Report, error) {
	start := time.Now()
	report := &Report{Total: len(intents)}
	if len(intents) == 0 {
		return report, nil
	}

	current, err := e.loadCurrent(ctx, intents)
	if err != nil {
		return nil, err
	}

	processed := 0
	for offset := 0; offset < len(intents); offset += e.cfg.ChunkSize {
		end := offset + e.cfg.ChunkSize
		if end > len(intents) {
			end = len(intents)
		}
		for _, intent := range intents[offset:end] {
			if err := ctx.Err(); err != nil {
				report.Duration = time.Since(start)
				return report, err
			}
			e.applyOne(ctx, intent, current, report)
			processed++
			if processed%e.cfg.ProgressEvery == 0 {
				e.logProgress(processed, report)
			}
		}
		if end < len(intents) && e.cfg.ChunkDelay() > 0 {
			select {
			case <-ctx.Done():
				report.Duration = time.Since(start)
				return report, ctx.Err()
			case <-time.After(e.cfg.ChunkDelay()):
			}
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("batch run complete",
		zap.Int("total", report.Total),
		zap.Int("applied", report.Applied),
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("missing", report.Missing),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// loadCurrent reads the current values of every touched column for every
// targeted key in one query, so already-applied intents are detected before
// any write happens.
func (e *Executor) loadCurrent(ctx context.Context, intents []Intent) (map[string]map[string]string, error) {
	columnSet := make(map[string]bool)
	keySet := make(map[string]bool)
	for _, intent := range intents {
		keySet[intent.ExternalKey] = true
		for col := range intent.Set {
			columnSet[col] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}

	current, err := e.tickets.SelectFieldsByExternalKeys(ctx, columns, keys)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return current, nil
}

func (e *Executor) applyOne(ctx context.Context, intent Intent, current map[string]map[string]string, report *Report) {
	row, exists := current[intent.ExternalKey]
	if !exists {
		report.Missing++
		e.logger.Warn("batch target not found",
			zap.String("external_key", intent.ExternalKey),
			zap.Int("statement", intent.Statement))
		return
	}
	if alreadyApplied(intent.Set, row) {
		report.AlreadyDone++
		return
	}

	rows, err := e.tickets.UpdateFieldsByExternalKey(ctx, intent.ExternalKey, intent.Set)
	if err != nil {
		report.Failed++
		report.Failures = append(report.Failures, Failure{
			ExternalKey: intent.ExternalKey,
			Statement:   intent.Statement,
			Error:       err.Error(),
		})
		e.logger.Warn("batch update failed",
			zap.String("external_key", intent.ExternalKey),
			zap.Int("statement", intent.Statement),
			zap.Error(err))
		return
	}
	if rows == 0 {
		// The guarded update matched nothing: the row already holds every
		// desired value under the column's own type, even when the text
		// renderings differ (date literals against stored timestamps).
		report.AlreadyDone++
		return
	}
	report.Applied++
}

// alreadyApplied is the fast path: every desired value matches the preloaded
// text rendering, with NULL normalized to the empty string, so the intent is
// skipped without a write. Typed equivalence the text comparison cannot see
// is caught by the guarded update instead.
func alreadyApplied(set map[string]string, row map[string]string) bool {
	for col, want := range set {
		if row[col] != want {
			return false
		}
	}
	return true
}

func (e *Executor) logProgress(processed int, report *Report) {
	e.logger.Info("batch progress",
		zap.Int("processed", processed),
		zap.Int("total", report.Total),
		zap.Int("applied", report.Applied),
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("failed", report.Failed),
	)
}
