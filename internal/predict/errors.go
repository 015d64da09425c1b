package predict

import "errors"

var (
	// ErrModelUnavailable means the model artifact never loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidImage means the upload could not be decoded; the caller is at fault.
	ErrInvalidImage = errors.New("invalid image")
	// ErrPredictionFailed covers every other failure while serving a prediction.
	ErrPredictionFailed = errors.New("prediction failed")
)
