package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"EntryGate/internal/domain/models"
	domrepo "EntryGate/internal/domain/repository"
	domsvc "EntryGate/internal/domain/service"
	"EntryGate/internal/services/engine"
	"EntryGate/pkg/logger"
)

// ConditionsReader hands out the active document version.
type ConditionsReader interface {
	Current() *models.VersionedConditions
}

// Broadcaster pushes evaluations to live subscribers.
type Broadcaster interface {
	Broadcast(ev *models.Evaluation)
}

// EvaluationLoop owns the per-symbol market state and runs every snapshot
// through the engine selected by the active conditions version.
//
// Streaks advance on closed candles only. An open-candle tick is evaluated
// against a copy of the state, so repeated intra-candle ticks neither grow
// nor reset the counters.
type EvaluationLoop struct {
	conditions ConditionsReader
	deriver    domsvc.SnapshotDeriver
	fallback   *engine.DefaultEngine
	metrics    domrepo.Metrics
	log        *logger.Logger

	decisions   domrepo.DecisionLog
	publisher   domrepo.DecisionPublisher
	broadcaster Broadcaster

	allowDuplicates bool
	sinkTimeout     time.Duration
	newID           func() string

	mu      sync.Mutex
	symbols map[string]*symbolState

	latestMu sync.RWMutex
	latest   map[string]*models.Evaluation
}

type symbolState struct {
	mu    sync.Mutex
	state models.MarketState
}

type LoopOption func(*EvaluationLoop)

func WithDecisionLog(d domrepo.DecisionLog) LoopOption {
	return func(l *EvaluationLoop) { l.decisions = d }
}

func WithPublisher(p domrepo.DecisionPublisher) LoopOption {
	return func(l *EvaluationLoop) { l.publisher = p }
}

func WithBroadcaster(b Broadcaster) LoopOption {
	return func(l *EvaluationLoop) { l.broadcaster = b }
}

// WithDuplicateTicks lets a closed candle be evaluated more than once.
func WithDuplicateTicks(allow bool) LoopOption {
	return func(l *EvaluationLoop) { l.allowDuplicates = allow }
}

func NewEvaluationLoop(
	conditions ConditionsReader,
	deriver domsvc.SnapshotDeriver,
	fallback *engine.DefaultEngine,
	metrics domrepo.Metrics,
	l *logger.Logger,
	opts ...LoopOption,
) *EvaluationLoop {
	if l == nil {
		l = logger.Nop()
	}
	loop := &EvaluationLoop{
		conditions:  conditions,
		deriver:     deriver,
		fallback:    fallback,
		metrics:     metrics,
		log:         l.With("evaluation"),
		sinkTimeout: 2 * time.Second,
		newID:       func() string { return uuid.NewString() },
		symbols:     make(map[string]*symbolState),
		latest:      make(map[string]*models.Evaluation),
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop
}

// Process evaluates one snapshot and fans the result out to the sinks. Sink
// failures are logged and never fail the evaluation.
func (l *EvaluationLoop) Process(ctx context.Context, snap *models.IndicatorSnapshot) (*models.Evaluation, error) {
	start := time.Now()
	if snap == nil || snap.Symbol == "" {
		l.metrics.RecordError("snapshot_invalid")
		return nil, models.NewSchemaError("symbol", "is required")
	}
	derived := l.deriver.Derive(snap)
	if derived.Timestamp.IsZero() {
		derived.Timestamp = start.UTC()
	}

	ev, err := l.evaluate(derived)
	if err != nil {
		return nil, err
	}

	l.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	l.record(ev)
	l.fanOut(ctx, ev)
	return ev, nil
}

func (l *EvaluationLoop) evaluate(snap *models.IndicatorSnapshot) (*models.Evaluation, error) {
	st := l.stateFor(snap.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if snap.CandleClosed && !l.allowDuplicates && !st.state.LastClosed.IsZero() &&
		!snap.Timestamp.After(st.state.LastClosed) {
		l.metrics.RecordError("duplicate_tick")
		return nil, fmt.Errorf("%w: %s at %s", models.ErrDuplicateTick, snap.Symbol, snap.Timestamp.Format(time.RFC3339))
	}

	state := &st.state
	if !snap.CandleClosed {
		tmp := st.state
		state = &tmp
	}

	v := l.conditions.Current()
	ev := engine.Select(v, l.fallback).Evaluate(snap, state)
	if snap.CandleClosed {
		st.state.LastClosed = snap.Timestamp
	}
	ev.ID = l.newID()
	return &ev, nil
}

// DryRun evaluates snap against the active document with the given starting
// streaks. It touches no per-symbol state and no sink.
func (l *EvaluationLoop) DryRun(snap *models.IndicatorSnapshot, longStreak, shortStreak int) *models.Evaluation {
	derived := l.deriver.Derive(snap)
	if derived.Timestamp.IsZero() {
		derived.Timestamp = time.Now().UTC()
	}
	state := &models.MarketState{LongStreak: longStreak, ShortStreak: shortStreak}
	ev := engine.Select(l.conditions.Current(), l.fallback).Evaluate(derived, state)
	ev.ID = l.newID()
	return &ev
}

// Latest returns the last evaluation for symbol.
func (l *EvaluationLoop) Latest(symbol string) (*models.Evaluation, bool) {
	l.latestMu.RLock()
	defer l.latestMu.RUnlock()
	ev, ok := l.latest[symbol]
	return ev, ok
}

// State returns a copy of the market state held for symbol.
func (l *EvaluationLoop) State(symbol string) models.MarketState {
	st := l.stateFor(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// ResetStreaks clears the counters of every symbol.
func (l *EvaluationLoop) ResetStreaks() {
	l.mu.Lock()
	states := make([]*symbolState, 0, len(l.symbols))
	for _, st := range l.symbols {
		states = append(states, st)
	}
	l.mu.Unlock()
	for _, st := range states {
		st.mu.Lock()
		st.state.Reset()
		st.mu.Unlock()
	}
}

func (l *EvaluationLoop) stateFor(symbol string) *symbolState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.symbols[symbol]
	if !ok {
		st = &symbolState{}
		l.symbols[symbol] = st
	}
	return st
}

func (l *EvaluationLoop) record(ev *models.Evaluation) {
	l.latestMu.Lock()
	l.latest[ev.Symbol] = ev
	l.latestMu.Unlock()

	l.metrics.RecordDecision(ev.Symbol, ev.Decision, ev.Engine)
	for _, r := range []models.SideResult{ev.Long, ev.Short} {
		if r.BlockReason != models.BlockNone {
			l.metrics.RecordBlocked(r.Side, r.BlockReason)
		}
		if r.Bypassed {
			l.metrics.RecordBypass(r.Side)
		}
	}
	if ev.Decision != models.DecisionNone {
		l.log.Info("entry decision",
			logger.String("symbol", ev.Symbol),
			logger.String("decision", string(ev.Decision)),
			logger.String("engine", ev.Engine),
			logger.Int64("version", ev.Version),
			logger.Bool("deferred", ev.Deferred),
			logger.Float64("margin", ev.Margin),
			logger.String("reason", ev.Reason))
	}
}

func (l *EvaluationLoop) fanOut(ctx context.Context, ev *models.Evaluation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.sinkTimeout)
	defer cancel()

	if l.decisions != nil {
		if err := l.decisions.Store(ctx, ev); err != nil {
			l.metrics.RecordError("decision_log")
			l.log.Warn("decision log write failed", logger.String("symbol", ev.Symbol), logger.Error(err))
		}
	}
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, ev); err != nil {
			l.metrics.RecordError("decision_publish")
			l.log.Warn("decision publish failed", logger.String("symbol", ev.Symbol), logger.Error(err))
		}
	}
	if l.broadcaster != nil {
		l.broadcaster.Broadcast(ev)
	}
}
