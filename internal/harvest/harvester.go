package harvest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/models"
)

const DefaultMaxStallScrolls = 5

// Source is a lazily rendered, scrollable feed of post cards.
type Source interface {
	// CurrentBatch returns every card currently visible.
	CurrentBatch(ctx context.Context) ([]RawItem, error)
	// Advance scrolls or paginates. It returns false when there is no further content.
	Advance(ctx context.Context) (bool, error)
}

type StopReason string

const (
	StopMaxItems  StopReason = "max_items"
	StopStalled   StopReason = "stalled"
	StopExhausted StopReason = "exhausted"
	StopError     StopReason = "error"
	StopCanceled  StopReason = "canceled"
)

type Options struct {
	MaxItems        int
	MaxStallScrolls int
	// ScrollDelay is the base pause after each advance; the actual pause is
	// drawn from [ScrollDelay, 2*ScrollDelay).
	ScrollDelay time.Duration
}

// Result holds the candidates in discovery order and why the harvest stopped.
type Result struct {
	Candidates []models.Candidate
	Stalls     int
	Reason     StopReason
}

type Harvester struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Harvester {
	return &Harvester{logger: logger}
}

// Harvest collects up to opts.MaxItems unique candidates from src. A pass that
// adds nothing new is a stall; MaxStallScrolls consecutive stalls end the
// harvest. On a source error the candidates collected so far are returned
// together with the error.
func (h *Harvester) Harvest(ctx context.Context, src Source, opts Options) (Result, error) {
	if opts.MaxStallScrolls <= 0 {
		opts.MaxStallScrolls = DefaultMaxStallScrolls
	}

	var res Result
	if opts.MaxItems <= 0 {
		res.Reason = StopMaxItems
		return res, nil
	}
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			res.Reason = StopCanceled
			return res, err
		}

		batch, err := src.CurrentBatch(ctx)
		if err != nil {
			res.Reason = StopError
			h.logger.Error("Failed to read harvest batch",
				zap.Int("collected", len(res.Candidates)), zap.Error(err))
			return res, fmt.Errorf("read batch: %w", err)
		}

		added := 0
		for _, raw := range batch {
			if len(res.Candidates) >= opts.MaxItems {
				break
			}
			c, ok := Parse(raw)
			if !ok {
				continue
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			res.Candidates = append(res.Candidates, c)
			added++
		}

		if added == 0 {
			res.Stalls++
			h.logger.Debug("No new candidates in this pass",
				zap.Int("stalls", res.Stalls), zap.Int("limit", opts.MaxStallScrolls))
		} else {
			res.Stalls = 0
		}

		if len(res.Candidates) >= opts.MaxItems {
			res.Reason = StopMaxItems
			break
		}
		if res.Stalls >= opts.MaxStallScrolls {
			res.Reason = StopStalled
			break
		}

		more, err := src.Advance(ctx)
		if err != nil {
			res.Reason = StopError
			h.logger.Error("Failed to advance harvest source",
				zap.Int("collected", len(res.Candidates)), zap.Error(err))
			return res, fmt.Errorf("advance: %w", err)
		}
		if !more {
			res.Reason = StopExhausted
			break
		}
		if err := pause(ctx, opts.ScrollDelay); err != nil {
			res.Reason = StopCanceled
			return res, err
		}
	}

	h.logger.Info("Harvest finished",
		zap.Int("collected", len(res.Candidates)),
		zap.String("reason", string(res.Reason)))
	return res, nil
}

func pause(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return ctx.Err()
	}
	d := base + time.Duration(rand.Int64N(int64(base)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
