package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"EntryGate/internal/domain/models"
	domrepo "EntryGate/internal/domain/repository"
	svcmetrics "EntryGate/internal/service/metrics"
	"EntryGate/pkg/logger"
)

// ConditionService is the only writer of the conditions document. Readers
// get the active version from Current, which never blocks and never returns
// a document that is being modified.
type ConditionService struct {
	store domrepo.ConditionStore
	log   *logger.Logger

	current atomic.Pointer[models.VersionedConditions]
	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   []func(*models.VersionedConditions)

	seed       *models.TradeConditions
	loadPolicy func() backoff.BackOff
}

func NewConditionService(store domrepo.ConditionStore, l *logger.Logger) *ConditionService {
	if l == nil {
		l = logger.Nop()
	}
	s := &ConditionService{
		store: store,
		log:   l.With("conditions"),
		loadPolicy: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 200 * time.Millisecond
			eb.MaxElapsedTime = 30 * time.Second
			return eb
		},
	}
	s.current.Store(&models.VersionedConditions{Document: &models.TradeConditions{}})
	return s
}

// SetSeed sets a document saved on Load when the store holds no version yet.
func (s *ConditionService) SetSeed(doc *models.TradeConditions) { s.seed = doc }

// Subscribe registers fn to run after every change of the active version.
func (s *ConditionService) Subscribe(fn func(*models.VersionedConditions)) {
	s.subsMu.Lock()
	s.subs = append(s.subs, fn)
	s.subsMu.Unlock()
}

// Load reads the active version from the store, retrying while the store is
// unreachable, and seeds an empty store.
func (s *ConditionService) Load(ctx context.Context) error {
	var v *models.VersionedConditions
	err := backoff.Retry(func() error {
		var err error
		v, err = s.store.Current(ctx)
		if err != nil {
			var se *models.SchemaError
			if errors.As(err, &se) {
				return backoff.Permanent(err)
			}
			s.log.Warn("conditions store not ready", logger.Error(err))
		}
		return err
	}, backoff.WithContext(s.loadPolicy(), ctx))
	if err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}

	if v.Version == 0 && s.seed != nil {
		seeded, err := s.Save(ctx, s.seed)
		if err != nil {
			return fmt.Errorf("seed conditions: %w", err)
		}
		s.log.Info("conditions seeded", logger.Int64("version", seeded.Version))
		return nil
	}
	s.publish(v)
	s.log.Info("conditions loaded",
		logger.Int64("version", v.Version),
		logger.String("mode", v.Document.Mode))
	return nil
}

// Current returns the active version. The document must not be modified.
func (s *ConditionService) Current() *models.VersionedConditions {
	return s.current.Load()
}

// SaveRaw decodes body strictly and saves it.
func (s *ConditionService) SaveRaw(ctx context.Context, body []byte) (*models.VersionedConditions, error) {
	doc, err := models.DecodeConditions(body)
	if err != nil {
		svcmetrics.ConditionSaves.WithLabelValues("save", "invalid").Inc()
		return nil, err
	}
	return s.Save(ctx, doc)
}

// Save validates doc and stores it as a new version. An invalid document
// leaves the active version untouched.
func (s *ConditionService) Save(ctx context.Context, doc *models.TradeConditions) (*models.VersionedConditions, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.save(ctx, "save", doc)
}

func (s *ConditionService) save(ctx context.Context, op string, doc *models.TradeConditions) (*models.VersionedConditions, error) {
	doc = doc.Clone()
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		svcmetrics.ConditionSaves.WithLabelValues(op, "invalid").Inc()
		return nil, err
	}

	v, err := s.store.Save(ctx, doc)
	if err != nil {
		svcmetrics.ConditionSaves.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("save conditions: %w", err)
	}
	svcmetrics.ConditionSaves.WithLabelValues(op, "ok").Inc()
	s.publish(v)
	s.log.Info("conditions saved",
		logger.String("op", op),
		logger.Int64("version", v.Version),
		logger.String("mode", v.Document.Mode),
		logger.Bool("empty", v.Document.IsEmpty()))
	return v, nil
}

// Reset stores the empty document, which selects the default rules.
func (s *ConditionService) Reset(ctx context.Context) (*models.VersionedConditions, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.save(ctx, "reset", &models.TradeConditions{})
}

// Update applies fn to a copy of the active document and saves the result.
// Local updates are serialised so two edits never start from the same base.
func (s *ConditionService) Update(ctx context.Context, op string, fn func(*models.TradeConditions) error) (*models.VersionedConditions, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := s.Current().Document.Clone()
	if err := fn(doc); err != nil {
		svcmetrics.ConditionSaves.WithLabelValues(op, "invalid").Inc()
		return nil, err
	}
	return s.save(ctx, op, doc)
}

func (s *ConditionService) Apply(ctx context.Context, p *models.ConditionsPatch) (*models.VersionedConditions, error) {
	return s.Update(ctx, "patch", func(doc *models.TradeConditions) error {
		p.ApplyTo(doc)
		return nil
	})
}

// ToggleCore flips one core condition and reports whether it is now set.
func (s *ConditionService) ToggleCore(ctx context.Context, side models.Side, c models.IndicatorCondition) (*models.VersionedConditions, bool, error) {
	var on bool
	v, err := s.Update(ctx, "toggle_core", func(doc *models.TradeConditions) error {
		on = doc.ToggleCore(side, c)
		return nil
	})
	return v, on, err
}

func (s *ConditionService) AddPair(ctx context.Context, side models.Side, p models.IndicatorPair) (*models.VersionedConditions, error) {
	return s.Update(ctx, "add_pair", func(doc *models.TradeConditions) error {
		doc.AddPair(side, p)
		return nil
	})
}

func (s *ConditionService) RemovePair(ctx context.Context, side models.Side, index int) (*models.VersionedConditions, error) {
	return s.Update(ctx, "remove_pair", func(doc *models.TradeConditions) error {
		return doc.RemovePair(side, index)
	})
}

func (s *ConditionService) History(ctx context.Context, limit int) ([]models.VersionMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.History(ctx, limit)
}

func (s *ConditionService) Version(ctx context.Context, version int64) (*models.VersionedConditions, error) {
	return s.store.Get(ctx, version)
}

// Rollback saves an old version's document as a new version.
func (s *ConditionService) Rollback(ctx context.Context, version int64) (*models.VersionedConditions, error) {
	old, err := s.store.Get(ctx, version)
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.save(ctx, "rollback", old.Document)
}

// Refresh picks up versions saved by other instances.
func (s *ConditionService) Refresh(ctx context.Context) error {
	v, err := s.store.Current(ctx)
	if err != nil {
		svcmetrics.RefreshErrors.Inc()
		return fmt.Errorf("refresh conditions: %w", err)
	}
	if v.Version != s.Current().Version {
		s.publish(v)
		s.log.Info("conditions refreshed", logger.Int64("version", v.Version))
	}
	return nil
}

// Watch polls the store until ctx ends.
func (s *ConditionService) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("conditions refresh failed", logger.Error(err))
			}
		}
	}
}

// publish swaps in v unless a newer version is already active.
func (s *ConditionService) publish(v *models.VersionedConditions) {
	for {
		cur := s.current.Load()
		if cur != nil && cur.Version > v.Version {
			return
		}
		if s.current.CompareAndSwap(cur, v) {
			break
		}
	}
	svcmetrics.ConditionVersion.Set(float64(v.Version))

	s.subsMu.RLock()
	subs := s.subs
	s.subsMu.RUnlock()
	for _, fn := range subs {
		fn(v)
	}
}
