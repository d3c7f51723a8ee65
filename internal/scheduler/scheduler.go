package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/engagebot/internal/classifier"
	"github.com/xaenox/engagebot/internal/harvest"
	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/metrics"
	"github.com/xaenox/engagebot/internal/models"
	"github.com/xaenox/engagebot/internal/storage"
)

// Executor performs actions on the platform. Each method returns nil only
// when the action was confirmed.
type Executor interface {
	Like(ctx context.Context, candidateID, permalink string) error
	Post(ctx context.Context, text string, media []string) error
	Reply(ctx context.Context, c *models.Candidate, text string) error
	RetweetOrQuote(ctx context.Context, c *models.Candidate, quoteText string) error
}

// Session is one account's authenticated connection to the platform.
type Session interface {
	Executor
	Profile(ctx context.Context, url string) (harvest.Source, error)
	Search(ctx context.Context, keyword string) (harvest.Source, error)
	Close() error
}

type Connector interface {
	Connect(ctx context.Context, p *models.AccountPolicy) (Session, error)
}

// TextGenerator composes posts, quotes and replies.
type TextGenerator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Result, error)
}

type State string

const (
	StateLoaded    State = "loaded"
	StateValidated State = "validated"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateSkipped   State = "skipped"
)

// Outcome is the result of one account run.
type Outcome struct {
	AccountID    string
	RunID        string
	State        State
	Err          error
	Actions      map[models.ActionKind]int
	Failures     int
	LedgerErrors int
	Started      time.Time
	Finished     time.Time
}

func (o Outcome) Succeeded() bool {
	return o.State == StateFinished && o.Err == nil
}

// Status is the label used in metrics and reports.
func (o Outcome) Status() string {
	switch {
	case o.State == StateSkipped:
		return "skipped"
	case o.Err != nil:
		return "error"
	default:
		return "success"
	}
}

func (o Outcome) TotalActions() int {
	n := 0
	for _, v := range o.Actions {
		n += v
	}
	return n
}

type Options struct {
	// Concurrency caps how many accounts run at once. Zero means no limit.
	Concurrency     int
	MaxStallScrolls int
	ScrollDelay     time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Scheduler struct {
	connector Connector
	engine    *classifier.Engine
	gen       TextGenerator
	ledger    *storage.Ledger
	harvester *harvest.Harvester
	recorder  *metrics.Recorder
	opts      Options
	logger    *zap.Logger
}

func New(connector Connector, engine *classifier.Engine, gen TextGenerator, ledger *storage.Ledger,
	recorder *metrics.Recorder, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Scheduler{
		connector: connector,
		engine:    engine,
		gen:       gen,
		ledger:    ledger,
		harvester: harvest.New(logger),
		recorder:  recorder,
		opts:      opts,
		logger:    logger,
	}
}

// RunAll runs every account concurrently and returns their outcomes in input
// order. One account's failure or panic never affects another.
func (s *Scheduler) RunAll(ctx context.Context, policies []models.AccountPolicy) []Outcome {
	outcomes := make([]Outcome, len(policies))

	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	s.logger.Info("Starting account runs",
		zap.Int("accounts", len(policies)),
		zap.Int("concurrency", s.opts.Concurrency))
	for i := range policies {
		g.Go(func() error {
			outcomes[i] = s.RunAccount(ctx, &policies[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// RunAccount drives one account through loaded, validated, running and
// finished. Validation and session failures end the run with an error;
// everything else degrades to fewer actions.
func (s *Scheduler) RunAccount(ctx context.Context, p *models.AccountPolicy) (out Outcome) {
	out = Outcome{
		AccountID: p.AccountID,
		RunID:     uuid.NewString(),
		State:     StateLoaded,
		Actions:   make(map[models.ActionKind]int),
		Started:   s.opts.Now(),
	}
	log := s.logger.With(zap.String("account_id", p.AccountID), zap.String("run_id", out.RunID))

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic in account run: %v", r)
			log.Error("Account run panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		if out.State != StateSkipped {
			out.State = StateFinished
		}
		out.Finished = s.opts.Now()
		s.recorder.RunFinished(p.AccountID, out.RunID, out.Status(), out.TotalActions(), out.Finished.Sub(out.Started))
		log.Info("Finished processing account",
			zap.String("status", out.Status()),
			zap.Int("actions", out.TotalActions()),
			zap.Int("failures", out.Failures),
			zap.Error(out.Err))
	}()

	if !p.Active {
		log.Info("Account is inactive, skipping")
		out.State = StateSkipped
		return out
	}
	if err := p.Validate(); err != nil {
		log.Error("Account policy failed validation", zap.Error(err))
		out.Err = err
		return out
	}
	out.State = StateValidated

	sess, err := s.connector.Connect(ctx, p)
	if err != nil {
		log.Error("Failed to establish session", zap.Error(err))
		out.Err = fmt.Errorf("connect: %w", err)
		return out
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("Failed to close session", zap.Error(err))
		}
	}()

	out.State = StateRunning
	s.recorder.RunStarted(p.AccountID, out.RunID)
	log.Info("Starting processing for account")

	run := &accountRun{s: s, p: p, sess: sess, out: &out, logger: log}
	for _, feature := range []func(context.Context) error{
		run.competitor,
		run.replies,
		run.retweets,
		run.likes,
	} {
		if err := feature(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Warn("Account run interrupted", zap.Error(err))
				out.Err = err
				return out
			}
			log.Error("Feature failed", zap.Error(err))
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter draws uniformly from [lo, hi].
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
