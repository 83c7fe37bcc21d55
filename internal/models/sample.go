package models

import "time"

// ServiceTimeSample is one measured duration for a service or preset
type ServiceTimeSample struct {
	TargetID    string        `json:"target_id"`
	Fingerprint PcFingerprint `json:"fingerprint"`
	Duration    time.Duration `json:"duration_ns"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// ServiceModelWeights is a fitted model for one target id.
// Weights[0] is the bias, Weights[1:] follow FeatureNames.
type ServiceModelWeights struct {
	TargetID     string    `json:"target_id"`
	Weights      []float64 `json:"weights"`
	FeatureMeans []float64 `json:"feature_means"`
	FeatureStds  []float64 `json:"feature_stds"`
	TargetMean   float64   `json:"target_mean"`
	TargetScale  float64   `json:"target_scale"`
	SampleCount  int       `json:"sample_count"`
	FittedAt     time.Time `json:"fitted_at"`
}

// PredictionMethod tells how a prediction was produced
type PredictionMethod string

const (
	PredictionModel   PredictionMethod = "model"
	PredictionMean    PredictionMethod = "mean"
	PredictionDefault PredictionMethod = "default"
)

// Prediction is an estimated duration plus a confidence indicator
type Prediction struct {
	TargetID    string           `json:"target_id"`
	Duration    time.Duration    `json:"duration_ns"`
	Seconds     float64          `json:"seconds"`
	Method      PredictionMethod `json:"method"`
	SampleCount int              `json:"sample_count"`
	UsedSamples int              `json:"used_samples"`
}
