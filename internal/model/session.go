package model

import (
	"context"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/wound-api/internal/imaging"
)

// Session runs an ONNX classifier through onnxruntime. Its input and output
// tensors are allocated once and reused, so runs go through a single-slot gate.
type Session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	layout       Layout
	scale        float32
	classes      int
	gate         chan struct{}
}

func NewSession(cfg Config, classes int) (*Session, error) {
	layout, err := ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	if classes <= 0 {
		return nil, fmt.Errorf("invalid class count %d", classes)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}

	if !ort.IsInitialized() {
		if cfg.Library != "" {
			ort.SetSharedLibraryPath(cfg.Library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputShape := ort.NewShape(1, imaging.Height, imaging.Width, imaging.Channels)
	if layout == LayoutNCHW {
		inputShape = ort.NewShape(1, imaging.Channels, imaging.Height, imaging.Width)
	}
	outputShape := ort.NewShape(1, int64(classes))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.Path,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		layout:       layout,
		scale:        cfg.PixelScale,
		classes:      classes,
		gate:         make(chan struct{}, 1),
	}, nil
}

// Predict runs a batch of one and returns a copy of the single output row.
func (s *Session) Predict(ctx context.Context, t imaging.PixelTensor) ([]float32, error) {
	if len(t.Pix) != imaging.Height*imaging.Width*imaging.Channels {
		return nil, fmt.Errorf("unexpected tensor size %d", len(t.Pix))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.gate }()

	fillInput(s.inputTensor.GetData(), t, s.layout, s.scale)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, s.classes)
	copy(out, s.outputTensor.GetData())
	return out, nil
}

func (s *Session) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// fillInput writes t into dst as float32 values multiplied by scale. NHWC keeps
// the pixel order; NCHW splits it into one plane per channel.
func fillInput(dst []float32, t imaging.PixelTensor, layout Layout, scale float32) {
	plane := t.Height * t.Width
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			pixelIndex := y*t.Width + x
			for ch := 0; ch < t.Channels; ch++ {
				v := float32(t.Pix[pixelIndex*t.Channels+ch]) * scale
				if layout == LayoutNCHW {
					dst[ch*plane+pixelIndex] = v
				} else {
					dst[pixelIndex*t.Channels+ch] = v
				}
			}
		}
	}
}
