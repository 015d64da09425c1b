// Package predict wires decoding, classification and suggestion lookup into
// a single prediction call.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Brownie44l1/wound-api/internal/catalog"
	"github.com/Brownie44l1/wound-api/internal/imaging"
	"github.com/Brownie44l1/wound-api/internal/model"
)

const PingMessage = "Wound classification service is running!"

type Result struct {
	Class       string
	Confidence  float64
	Suggestions []string
}

type Service struct {
	state   model.State
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewService(state model.State, cat *catalog.Catalog, logger *zap.Logger) *Service {
	return &Service{
		state:   state,
		catalog: cat,
		logger:  logger.Named("predict"),
	}
}

func (s *Service) Ping() string {
	return PingMessage
}

// Available reports whether predictions can be served at all.
func (s *Service) Available() bool {
	_, ok := s.state.(model.Loaded)
	return ok
}

// Predict classifies an uploaded image. Returned errors wrap one of
// ErrModelUnavailable, ErrInvalidImage or ErrPredictionFailed.
func (s *Service) Predict(ctx context.Context, data []byte) (Result, error) {
	var classifier model.Classifier
	switch st := s.state.(type) {
	case model.Loaded:
		classifier = st.Classifier
	case model.Unavailable:
		return Result{}, fmt.Errorf("%w: %v", ErrModelUnavailable, st.Reason)
	default:
		return Result{}, fmt.Errorf("%w: unknown model state %T", ErrModelUnavailable, st)
	}

	tensor, err := imaging.Decode(data)
	if err != nil {
		s.logger.Warn("error processing image", zap.Int("bytes", len(data)), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	probs, err := classifier.Predict(ctx, tensor)
	if err != nil {
		return Result{}, s.failed(err)
	}

	idx, maxProb, err := argmax(probs, s.catalog.Len())
	if err != nil {
		return Result{}, s.failed(err)
	}

	label, ok := s.catalog.Label(idx)
	if !ok {
		return Result{}, s.failed(fmt.Errorf("index %d has no label", idx))
	}

	res := Result{
		Class:       label,
		Confidence:  confidence(maxProb),
		Suggestions: s.catalog.Suggestions(label),
	}

	s.logger.Info("prediction",
		zap.String("class", res.Class),
		zap.Float64("confidence", res.Confidence),
	)
	return res, nil
}

func (s *Service) failed(cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		s.logger.Warn("prediction aborted", zap.Error(cause))
	} else {
		s.logger.Error("error during prediction", zap.Error(cause))
	}
	return fmt.Errorf("%w: %v", ErrPredictionFailed, cause)
}

// argmax returns the index and value of the largest entry; ties go to the
// lowest index.
func argmax(probs []float32, classes int) (int, float32, error) {
	if len(probs) == 0 {
		return 0, 0, errors.New("empty output vector")
	}
	if len(probs) != classes {
		return 0, 0, fmt.Errorf("output vector has %d entries, want %d", len(probs), classes)
	}

	maxIdx := 0
	maxVal := probs[0]
	for i, v := range probs {
		if math.IsNaN(float64(v)) {
			return 0, 0, fmt.Errorf("output %d is NaN", i)
		}
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx, maxVal, nil
}

// confidence converts a probability to a percentage in [0, 100] with two decimals.
func confidence(p float32) float64 {
	pct := float64(p) * 100
	pct = math.Max(0, math.Min(100, pct))
	return math.Round(pct*100) / 100
}
