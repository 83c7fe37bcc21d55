package services

import (
	"autoservice/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// EstimatorConfig holds the tunables of the duration model. The clamp bound,
// outlier threshold and regularization are safety valves, not derived values.
type EstimatorConfig struct {
	Lambda            float64       `validate:"gt=0"`
	WeightClamp       float64       `validate:"gt=0"`
	HalfLife          time.Duration `validate:"gt=0"`
	OutlierMinSamples int           `validate:"gte=1"`
	IQRMultiplier     float64       `validate:"gt=0"`
	MinFitSamples     int           `validate:"gte=1"`
	DefaultDuration   time.Duration `validate:"gt=0"`
	MinDuration       time.Duration `validate:"gt=0"`
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Lambda:            1.0,
		WeightClamp:       10,
		HalfLife:          30 * 24 * time.Hour,
		OutlierMinSamples: 4,
		IQRMultiplier:     1.5,
		MinFitSamples:     3,
		DefaultDuration:   5 * time.Minute,
		MinDuration:       time.Second,
	}
}

// SampleStore persists duration samples across restarts
type SampleStore interface {
	Append(ctx context.Context, samples []models.ServiceTimeSample) error
	Load(ctx context.Context) ([]models.ServiceTimeSample, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

// PredictionCache memoizes predictions per target id and fingerprint
type PredictionCache interface {
	Get(ctx context.Context, id string, fp models.PcFingerprint) (models.Prediction, bool)
	Set(ctx context.Context, fp models.PcFingerprint, p models.Prediction)
	Invalidate(ctx context.Context, id string)
}

// Estimator learns expected durations per service or preset id.
// Predictions run concurrently; recording and refits are serialized.
type Estimator struct {
	cfg   EstimatorConfig
	store SampleStore
	cache PredictionCache

	mu      sync.RWMutex
	samples map[string][]models.ServiceTimeSample
	models  map[string]fittedModel
	now     func() time.Time
}

type fittedModel struct {
	weights models.ServiceModelWeights
	ridge   ridgeModel
}

// NewEstimator creates an estimator. store and cache may be nil.
func NewEstimator(cfg EstimatorConfig, store SampleStore, cache PredictionCache) *Estimator {
	return &Estimator{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		samples: make(map[string][]models.ServiceTimeSample),
		models:  make(map[string]fittedModel),
		now:     time.Now,
	}
}

// Load reads persisted samples and fits a model for every id
func (e *Estimator) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	samples, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = make(map[string][]models.ServiceTimeSample)
	for _, s := range samples {
		if s.Duration <= 0 || s.TargetID == "" {
			continue
		}
		e.samples[s.TargetID] = append(e.samples[s.TargetID], s)
	}
	e.models = make(map[string]fittedModel)
	for id := range e.samples {
		e.refitLocked(ctx, id)
		e.invalidateLocked(ctx, id)
	}
	slog.InfoContext(ctx, "duration samples loaded", "samples", len(samples), "targets", len(e.samples))
	return nil
}

// RecordSample records one measured duration for id
func (e *Estimator) RecordSample(ctx context.Context, id string, fp models.PcFingerprint, d time.Duration) error {
	return e.RecordBatch(ctx, []models.ServiceTimeSample{{
		TargetID:    id,
		Fingerprint: fp,
		Duration:    d,
		RecordedAt:  e.now().UTC(),
	}})
}

// RecordBatch appends every valid sample, persists them and refits the
// affected ids. Invalid samples are rejected with ErrInvalidSample without
// affecting the rest of the batch.
func (e *Estimator) RecordBatch(ctx context.Context, samples []models.ServiceTimeSample) error {
	var errs []error
	valid := make([]models.ServiceTimeSample, 0, len(samples))
	for _, s := range samples {
		switch {
		case s.TargetID == "":
			errs = append(errs, fmt.Errorf("%w: empty target id", ErrInvalidSample))
		case s.Duration <= 0:
			errs = append(errs, fmt.Errorf("%w: %s: duration %s", ErrInvalidSample, s.TargetID, s.Duration))
		default:
			if s.RecordedAt.IsZero() {
				s.RecordedAt = e.now().UTC()
			}
			valid = append(valid, s)
		}
	}
	for _, err := range errs {
		slog.WarnContext(ctx, "rejected duration sample", "error", err)
	}
	if len(valid) == 0 {
		return errors.Join(errs...)
	}

	if e.store != nil {
		if err := e.store.Append(ctx, valid); err != nil {
			slog.ErrorContext(ctx, "persisting duration samples", "error", err)
			errs = append(errs, fmt.Errorf("persisting samples: %w", err))
		}
	}

	touched := make(map[string]struct{})
	e.mu.Lock()
	for _, s := range valid {
		e.samples[s.TargetID] = append(e.samples[s.TargetID], s)
		touched[s.TargetID] = struct{}{}
	}
	for id := range touched {
		e.refitLocked(ctx, id)
		e.invalidateLocked(ctx, id)
	}
	e.mu.Unlock()
	return errors.Join(errs...)
}

// invalidateLocked drops cached predictions of id. Callers hold the write lock.
func (e *Estimator) invalidateLocked(ctx context.Context, id string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, id)
	}
}

// refitLocked fits id from its samples. Too few samples drop the model;
// a failed fit keeps the previous one.
func (e *Estimator) refitLocked(ctx context.Context, id string) {
	filtered := FilterOutliers(e.samples[id], e.cfg.OutlierMinSamples, e.cfg.IQRMultiplier)
	if len(filtered) < e.cfg.MinFitSamples {
		delete(e.models, id)
		return
	}

	now := e.now()
	x := make([][]float64, len(filtered))
	y := make([]float64, len(filtered))
	w := make([]float64, len(filtered))
	for i, s := range filtered {
		x[i] = s.Fingerprint.Vector()
		y[i] = s.Duration.Seconds()
		w[i] = e.recencyWeight(now.Sub(s.RecordedAt))
	}
	ridge, err := fitRidge(x, y, w, e.cfg.Lambda, e.cfg.WeightClamp)
	if err != nil {
		slog.WarnContext(ctx, "refit failed, keeping previous model", "target_id", id, "error", err)
		return
	}
	e.models[id] = fittedModel{
		ridge: ridge,
		weights: models.ServiceModelWeights{
			TargetID:     id,
			Weights:      ridge.weights,
			FeatureMeans: ridge.means,
			FeatureStds:  ridge.stds,
			TargetMean:   ridge.targetMean,
			TargetScale:  ridge.targetScale,
			SampleCount:  len(filtered),
			FittedAt:     now.UTC(),
		},
	}
}

// recencyWeight halves a sample's influence every HalfLife
func (e *Estimator) recencyWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(e.cfg.HalfLife))
}

// Predict estimates the duration of id on a machine with fingerprint fp:
// the fitted model when there is one, else the mean of raw samples, else
// the configured default. The result is never below MinDuration.
func (e *Estimator) Predict(ctx context.Context, id string, fp models.PcFingerprint) models.Prediction {
	if e.cache != nil {
		if p, ok := e.cache.Get(ctx, id, fp); ok {
			return p
		}
	}

	// held until the result is cached; refits invalidate under the write lock
	e.mu.RLock()
	defer e.mu.RUnlock()
	raw := e.samples[id]
	model, fitted := e.models[id]
	p := models.Prediction{TargetID: id, SampleCount: len(raw)}
	var seconds float64
	switch {
	case fitted:
		seconds = model.ridge.predict(fp.Vector())
		p.Method = models.PredictionModel
		p.UsedSamples = model.weights.SampleCount
	case len(raw) > 0:
		var sum float64
		for _, s := range raw {
			sum += s.Duration.Seconds()
		}
		seconds = sum / float64(len(raw))
		p.Method = models.PredictionMean
		p.UsedSamples = len(raw)
	default:
		seconds = e.cfg.DefaultDuration.Seconds()
		p.Method = models.PredictionDefault
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = e.cfg.DefaultDuration.Seconds()
	}
	seconds = math.Max(seconds, e.cfg.MinDuration.Seconds())
	p.Duration = time.Duration(seconds * float64(time.Second))
	p.Seconds = seconds

	if e.cache != nil {
		e.cache.Set(ctx, fp, p)
	}
	return p
}

// Model returns the fitted weights of id
func (e *Estimator) Model(id string) (models.ServiceModelWeights, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[id]
	if !ok {
		return models.ServiceModelWeights{}, false
	}
	out := m.weights
	out.Weights = slices.Clone(out.Weights)
	out.FeatureMeans = slices.Clone(out.FeatureMeans)
	out.FeatureStds = slices.Clone(out.FeatureStds)
	return out, true
}

// Samples returns a copy of the recorded samples of id
func (e *Estimator) Samples(id string) []models.ServiceTimeSample {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.samples[id])
}

// TargetIDs lists every id with samples, sorted
func (e *Estimator) TargetIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.samples))
	for id := range e.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Prune drops samples recorded before the cutoff and refits what changed
func (e *Estimator) Prune(ctx context.Context, before time.Time) (int, error) {
	if e.store != nil {
		if _, err := e.store.Prune(ctx, before); err != nil {
			return 0, fmt.Errorf("pruning sample store: %w", err)
		}
	}

	removed := 0
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, list := range e.samples {
		kept := list[:0:0]
		for _, s := range list {
			if s.RecordedAt.Before(before) {
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == len(list) {
			continue
		}
		removed += len(list) - len(kept)
		e.invalidateLocked(ctx, id)
		if len(kept) == 0 {
			delete(e.samples, id)
			delete(e.models, id)
			continue
		}
		e.samples[id] = kept
		e.refitLocked(ctx, id)
	}
	return removed, nil
}

// FilterOutliers drops samples whose duration lies outside
// [Q1 - k*IQR, Q3 + k*IQR], repeating until a pass drops nothing so that
// filtering a filtered set is a no-op. Below minSamples nothing is dropped.
// The input order of kept samples is preserved.
func FilterOutliers(samples []models.ServiceTimeSample, minSamples int, k float64) []models.ServiceTimeSample {
	out := slices.Clone(samples)
	for len(out) >= minSamples && len(out) > 0 {
		next := filterOnce(out, k)
		if len(next) == len(out) {
			break
		}
		out = next
	}
	return out
}

func filterOnce(samples []models.ServiceTimeSample, k float64) []models.ServiceTimeSample {
	sorted := make([]float64, len(samples))
	for i, s := range samples {
		sorted[i] = s.Duration.Seconds()
	}
	sort.Float64s(sorted)
	lo, hi := iqrBounds(sorted, k)

	out := make([]models.ServiceTimeSample, 0, len(samples))
	for _, s := range samples {
		d := s.Duration.Seconds()
		if d < lo || d > hi {
			continue
		}
		out = append(out, s)
	}
	return out
}
