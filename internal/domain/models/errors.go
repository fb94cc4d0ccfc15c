package models

import "errors"

// Forecasting error taxonomy. Training surfaces these to the caller; the
// analyze path absorbs inference failures into the fallback forecaster.
var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrScaling            = errors.New("scaling failed")
	ErrConstantTarget     = errors.New("constant target series")
	ErrModelInference     = errors.New("model inference failed")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrArtifactNotFound   = errors.New("model artifact not found")
	ErrInvalidPrice       = errors.New("invalid current price")
)
