package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Xenocryptix/inference-webapp/internal/imaging"
)

var (
	ErrModelNotFound = errors.New("model file not found")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrInvalidMeta   = errors.New("invalid model metadata")
)

// Metadata describes the tensors of an exported model. Empty tensor names are
// discovered from the model file.
type Metadata struct {
	InputName   string         `json:"input_name,omitempty"`
	OutputName  string         `json:"output_name,omitempty"`
	InputShape  []int64        `json:"input_shape"`
	OutputShape []int64        `json:"output_shape"`
	Layout      imaging.Layout `json:"layout"`
	Classes     []string       `json:"classes,omitempty"`
	ImageSize   int            `json:"image_size"`
}

type Prediction struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float32            `json:"confidence"`
	Predictions    map[string]float32 `json:"predictions"`
}

// ModelFiles locates a model and its optional metadata file.
type ModelFiles struct {
	Model    string
	Metadata string
}

func DefaultClassifierMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 3},
		Layout:      imaging.NHWC,
		Classes:     []string{"normal", "benign", "malignant"},
		ImageSize:   224,
	}
}

func DefaultDenoiseMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, 128, 128, 1},
		OutputShape: []int64{1, 128, 128, 1},
		Layout:      imaging.NHWC,
		ImageSize:   128,
	}
}

// LoadMetadata reads the JSON metadata at path. A missing file yields defaults
// and found == false.
func LoadMetadata(path string, defaults Metadata) (meta Metadata, found bool, err error) {
	if path == "" {
		return defaults, false, nil
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("failed to read metadata: %w", err)
	}

	meta = defaults
	meta.Classes = nil
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.Classes == nil {
		meta.Classes = defaults.Classes
	}
	return meta, true, nil
}

func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

// imageDims returns channels, height and width of the input tensor.
func (m Metadata) imageDims() (c, h, w int64, err error) {
	if len(m.InputShape) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: input shape %v is not 4-D", ErrInvalidMeta, m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return 0, 0, 0, fmt.Errorf("%w: batch size must be 1, got %d", ErrInvalidMeta, m.InputShape[0])
	}
	switch m.Layout {
	case imaging.NHWC:
		return m.InputShape[3], m.InputShape[1], m.InputShape[2], nil
	case imaging.NCHW:
		return m.InputShape[1], m.InputShape[2], m.InputShape[3], nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: unknown layout %q", ErrInvalidMeta, m.Layout)
	}
}

func (m Metadata) validateImage(channels int64) error {
	c, h, w, err := m.imageDims()
	if err != nil {
		return err
	}
	if c != channels {
		return fmt.Errorf("%w: expected %d input channels, got %d", ErrInvalidMeta, channels, c)
	}
	if m.ImageSize <= 0 || h != int64(m.ImageSize) || w != int64(m.ImageSize) {
		return fmt.Errorf("%w: image size %d does not match input %dx%d", ErrInvalidMeta, m.ImageSize, h, w)
	}
	return nil
}

func (m Metadata) ValidateClassifier() error {
	if err := m.validateImage(3); err != nil {
		return err
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidMeta)
	}
	if m.OutputSize() != len(m.Classes) {
		return fmt.Errorf("%w: output shape %v has %d values for %d classes",
			ErrInvalidMeta, m.OutputShape, m.OutputSize(), len(m.Classes))
	}
	return nil
}

func (m Metadata) ValidateDenoiser() error {
	if err := m.validateImage(1); err != nil {
		return err
	}
	if want := m.ImageSize * m.ImageSize; m.OutputSize() != want {
		return fmt.Errorf("%w: output shape %v has %d values, want %d",
			ErrInvalidMeta, m.OutputShape, m.OutputSize(), want)
	}
	return nil
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}
