package services

import (
	"autoservice/internal/models"
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var estimatorNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEstimator(store SampleStore, cache PredictionCache) *Estimator {
	e := NewEstimator(DefaultEstimatorConfig(), store, cache)
	e.now = func() time.Time { return estimatorNow }
	return e
}

func seconds(ss ...float64) []models.ServiceTimeSample {
	out := make([]models.ServiceTimeSample, len(ss))
	for i, s := range ss {
		out[i] = models.ServiceTimeSample{
			TargetID:    "X",
			Fingerprint: testFingerprint,
			Duration:    time.Duration(s * float64(time.Second)),
			RecordedAt:  estimatorNow,
		}
	}
	return out
}

func durations(samples []models.ServiceTimeSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Duration.Seconds()
	}
	return out
}

func TestFilterOutliersDropsFarSample(t *testing.T) {
	t.Parallel()

	filtered := FilterOutliers(seconds(120, 125, 118, 900), 4, 1.5)
	require.Equal(t, []float64{120, 125, 118}, durations(filtered))
}

func TestFilterOutliersIsIdempotent(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    []float64
	}{
		{"tight cluster with outlier", []float64{120, 125, 118, 900}},
		{"cascade", []float64{10, 11, 12, 13, 14, 40, 80, 400, 3000}},
		{"two groups", []float64{60, 60, 120, 120, 120, 120, 120, 120, 120}},
		{"no outliers", []float64{30, 31, 32, 33}},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			once := FilterOutliers(seconds(tt.given...), 4, 1.5)
			twice := FilterOutliers(once, 4, 1.5)
			require.Equal(t, durations(once), durations(twice))
		})
	}
}

func TestFilterOutliersBelowMinimumKeepsAll(t *testing.T) {
	t.Parallel()

	given := seconds(10, 10, 5000)
	require.Equal(t, durations(given), durations(FilterOutliers(given, 4, 1.5)))
	require.Empty(t, FilterOutliers(nil, 4, 1.5))
}

func TestPredictWithoutSamplesReturnsDefault(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	p := e.Predict(testContext(t), "never_run", testFingerprint)
	require.Equal(t, models.PredictionDefault, p.Method)
	require.Equal(t, DefaultEstimatorConfig().DefaultDuration, p.Duration)
	require.Zero(t, p.SampleCount)
}

func TestPredictExcludesOutlier(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	require.NoError(t, e.RecordBatch(testContext(t), seconds(120, 125, 118, 900)))

	p := e.Predict(testContext(t), "X", testFingerprint)
	require.Equal(t, models.PredictionModel, p.Method)
	require.Equal(t, 4, p.SampleCount)
	require.Equal(t, 3, p.UsedSamples)
	require.InDelta(t, 121, p.Seconds, 1e-6)

	model, ok := e.Model("X")
	require.True(t, ok)
	require.Len(t, model.Weights, len(models.FeatureNames)+1)
}

func TestPredictWithZeroVarianceFeatures(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	for _, d := range []float64{100, 110, 90, 105, 95} {
		require.NoError(t, e.RecordSample(testContext(t), "X", testFingerprint, time.Duration(d)*time.Second))
	}
	p := e.Predict(testContext(t), "X", testFingerprint)
	require.False(t, math.IsNaN(p.Seconds))
	require.False(t, math.IsInf(p.Seconds, 0))
	require.InDelta(t, 100, p.Seconds, 1e-6)
}

func TestPredictConvergesOnRepeatedSamples(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	ctx := testContext(t)
	require.NoError(t, e.RecordBatch(ctx, seconds(60, 60)))

	prev := e.Predict(ctx, "X", testFingerprint).Seconds
	require.InDelta(t, 60, prev, 1e-6)
	for n := 0; n < 8; n++ {
		require.NoError(t, e.RecordSample(ctx, "X", testFingerprint, 120*time.Second))
		got := e.Predict(ctx, "X", testFingerprint).Seconds
		require.GreaterOrEqual(t, got, prev-1e-9)
		require.LessOrEqual(t, math.Abs(120-got), math.Abs(120-prev)+1e-9)
		prev = got
	}
	require.InDelta(t, 120, prev, 1e-6)
}

func TestPredictLearnsFromFeatures(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	slow := testFingerprint
	slow.DiskSSD = 0
	slow.RAMGB = 8
	var batch []models.ServiceTimeSample
	for n := 0; n < 5; n++ {
		batch = append(batch,
			models.ServiceTimeSample{TargetID: "sfc_scan", Fingerprint: testFingerprint, Duration: 300 * time.Second},
			models.ServiceTimeSample{TargetID: "sfc_scan", Fingerprint: slow, Duration: 900 * time.Second},
		)
	}
	require.NoError(t, e.RecordBatch(testContext(t), batch))

	fast := e.Predict(testContext(t), "sfc_scan", testFingerprint)
	slower := e.Predict(testContext(t), "sfc_scan", slow)
	require.Equal(t, models.PredictionModel, fast.Method)
	require.Less(t, fast.Seconds, slower.Seconds)
}

func TestRecordBatchRejectsInvalidSamples(t *testing.T) {
	t.Parallel()

	store := &memorySampleStore{}
	e := newTestEstimator(store, nil)
	err := e.RecordBatch(testContext(t), []models.ServiceTimeSample{
		{TargetID: "", Duration: time.Second},
		{TargetID: "X", Duration: -time.Second},
		{TargetID: "X", Duration: 30 * time.Second},
	})
	require.ErrorIs(t, err, ErrInvalidSample)
	require.Len(t, e.Samples("X"), 1)
	require.Len(t, store.samples, 1)
	require.Equal(t, estimatorNow, store.samples[0].RecordedAt)

	p := e.Predict(testContext(t), "X", testFingerprint)
	require.Equal(t, models.PredictionMean, p.Method)
	require.InDelta(t, 30, p.Seconds, 1e-6)
}

func TestPredictFloorsAtMinimum(t *testing.T) {
	t.Parallel()

	e := newTestEstimator(nil, nil)
	require.NoError(t, e.RecordSample(testContext(t), "X", testFingerprint, 10*time.Millisecond))
	p := e.Predict(testContext(t), "X", testFingerprint)
	require.Equal(t, DefaultEstimatorConfig().MinDuration, p.Duration)
}

func TestEstimatorLoadAndPrune(t *testing.T) {
	t.Parallel()

	store := &memorySampleStore{}
	old := seconds(50, 50, 50)
	for i := range old {
		old[i].RecordedAt = estimatorNow.Add(-200 * 24 * time.Hour)
	}
	store.samples = append(store.samples, old...)
	store.samples = append(store.samples, seconds(100, 100, 100)...)
	store.samples = append(store.samples, models.ServiceTimeSample{TargetID: "Y", Duration: 0})

	e := newTestEstimator(store, nil)
	require.NoError(t, e.Load(testContext(t)))
	require.Equal(t, []string{"X"}, e.TargetIDs())

	// with constant features the fit is the recency-weighted mean
	w := math.Pow(0.5, 200.0/30.0)
	require.InDelta(t, (50*w+100)/(w+1), e.Predict(testContext(t), "X", testFingerprint).Seconds, 1e-6)

	removed, err := e.Prune(testContext(t), estimatorNow.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	require.InDelta(t, 100, e.Predict(testContext(t), "X", testFingerprint).Seconds, 1e-6)
	require.Len(t, store.samples, 3)
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]models.Prediction
	invalidated []string
}

func (c *mapCache) Get(_ context.Context, id string, _ models.PcFingerprint) (models.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[id]
	return p, ok
}

func (c *mapCache) Set(_ context.Context, _ models.PcFingerprint, p models.Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.TargetID] = p
}

func (c *mapCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
}

func TestPredictUsesCache(t *testing.T) {
	t.Parallel()

	cache := &mapCache{entries: map[string]models.Prediction{}}
	e := newTestEstimator(nil, cache)

	first := e.Predict(testContext(t), "X", testFingerprint)
	require.Equal(t, first, cache.entries["X"])

	require.NoError(t, e.RecordSample(testContext(t), "X", testFingerprint, 42*time.Second))
	require.Equal(t, []string{"X"}, cache.invalidated)
	require.InDelta(t, 42, e.Predict(testContext(t), "X", testFingerprint).Seconds, 1e-6)
}

// gatedCache blocks Set until gate is closed and reports entry on setting
type gatedCache struct {
	*mapCache
	setting chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (c *gatedCache) Set(ctx context.Context, fp models.PcFingerprint, p models.Prediction) {
	c.once.Do(func() {
		close(c.setting)
		<-c.gate
	})
	c.mapCache.Set(ctx, fp, p)
}

func TestPredictNeverCachesAcrossRefit(t *testing.T) {
	t.Parallel()

	cache := &gatedCache{
		mapCache: &mapCache{entries: map[string]models.Prediction{}},
		setting:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
	e := newTestEstimator(nil, cache)

	predicted := make(chan models.Prediction, 1)
	go func() { predicted <- e.Predict(context.Background(), "X", testFingerprint) }()
	<-cache.setting

	recorded := make(chan error, 1)
	go func() {
		samples := seconds(42, 42, 42, 42, 42)
		recorded <- e.RecordBatch(context.Background(), samples)
	}()
	select {
	case err := <-recorded:
		recorded <- err
	case <-time.After(100 * time.Millisecond):
	}
	close(cache.gate)

	require.Equal(t, models.PredictionDefault, (<-predicted).Method)
	require.NoError(t, <-recorded)

	p := e.Predict(testContext(t), "X", testFingerprint)
	require.Equal(t, 5, p.SampleCount)
	require.InDelta(t, 42, p.Seconds, 1e-6)
}
