package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/Brownie44l1/wound-api/internal/imaging"
)

// Classifier turns one pixel tensor into a probability vector ordered like
// the class labels.
type Classifier interface {
	Predict(ctx context.Context, t imaging.PixelTensor) ([]float32, error)
}

// State is either Loaded or Unavailable. It is decided once at startup.
type State interface {
	isState()
}

type Loaded struct {
	Classifier Classifier
}

type Unavailable struct {
	Reason error
}

func (Loaded) isState()      {}
func (Unavailable) isState() {}

type Layout string

const (
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToUpper(s)) {
	case LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	}
	return "", fmt.Errorf("unknown tensor layout %q", s)
}

// Config describes the serialized model artifact and how to feed it.
type Config struct {
	Path       string  `toml:"path" default:"model/1.onnx"`
	Library    string  `toml:"onnxruntime_library"`
	InputName  string  `toml:"input_name" default:"input"`
	OutputName string  `toml:"output_name" default:"output"`
	Layout     string  `toml:"layout" default:"NHWC"`
	PixelScale float32 `toml:"pixel_scale" default:"1"`
}
