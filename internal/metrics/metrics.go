package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/engagebot/internal/models"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

const namespace = "engagebot"

// Recorder counts actions and writes a per-account event log. Events are a
// side channel; nothing in the pipeline reads them back.
type Recorder struct {
	registry  *prometheus.Registry
	actions   *prometheus.CounterVec
	harvested *prometheus.CounterVec
	runs      *prometheus.CounterVec

	eventsDir string
	logger    *zap.Logger

	mu    sync.Mutex
	sinks map[string]*eventSink
}

type eventSink struct {
	logger *zap.Logger
	file   *os.File
}

// NewRecorder creates a recorder with its own registry. An empty eventsDir
// disables the event log.
func NewRecorder(eventsDir string, logger *zap.Logger) (*Recorder, error) {
	if eventsDir != "" {
		if err := os.MkdirAll(eventsDir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating events directory: %w", err)
		}
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions attempted per account, action kind and outcome",
		}, []string{"account", "action", "outcome"}),
		harvested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvested_candidates_total",
			Help:      "Candidates collected by the harvester",
		}, []string{"account", "feature"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_runs_total",
			Help:      "Account runs by final state",
		}, []string{"account", "status"}),
		eventsDir: eventsDir,
		logger:    logger,
		sinks:     make(map[string]*eventSink),
	}
	r.registry.MustRegister(r.actions, r.harvested, r.runs)
	return r, nil
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Action increments the action counter.
func (r *Recorder) Action(account string, kind models.ActionKind, outcome Outcome) {
	r.actions.WithLabelValues(account, string(kind), string(outcome)).Inc()
}

func (r *Recorder) Harvested(account, feature string, n int) {
	r.harvested.WithLabelValues(account, feature).Add(float64(n))
}

// Event appends one JSON line to the account's event log.
func (r *Recorder) Event(account, action, result string, fields ...zap.Field) {
	sink, err := r.sink(account)
	if err != nil {
		r.logger.Error("Failed to open event log", zap.String("account_id", account), zap.Error(err))
		return
	}
	if sink == nil {
		return
	}
	base := []zap.Field{
		zap.String("event_id", uuid.NewString()),
		zap.String("account", account),
		zap.String("result", result),
	}
	sink.logger.Info(action, append(base, fields...)...)
}

func (r *Recorder) RunStarted(account, runID string) {
	r.Event(account, "run_started", "ok", zap.String("run_id", runID))
}

func (r *Recorder) RunFinished(account, runID, status string, actions int, elapsed time.Duration) {
	r.runs.WithLabelValues(account, status).Inc()
	r.Event(account, "run_finished", status,
		zap.String("run_id", runID),
		zap.Int("actions", actions),
		zap.Duration("elapsed", elapsed))
}

func (r *Recorder) sink(account string) (*eventSink, error) {
	if r.eventsDir == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sinks[account]; ok {
		return s, nil
	}
	path := filepath.Join(r.eventsDir, sanitize(account)+".jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "event"
	encCfg.LevelKey = zapcore.OmitKey
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.InfoLevel)

	s := &eventSink{logger: zap.New(core), file: f}
	r.sinks[account] = s
	return s, nil
}

func sanitize(account string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ':', '.', ' ':
			return '_'
		}
		return c
	}, account)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close flushes and closes every event log.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for account, s := range r.sinks {
		_ = s.logger.Sync()
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events of %s: %w", account, err))
		}
		delete(r.sinks, account)
	}
	return errors.Join(errs...)
}
