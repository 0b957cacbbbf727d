package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xenocryptix/inference-webapp/internal/imaging"
)

type fakeRunner struct {
	input  []float32
	output []float32
	err    error
	closed bool
}

func (f *fakeRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeRunner) Close() {
	f.closed = true
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestClassifier_Classify(t *testing.T) {
	runner := &fakeRunner{output: []float32{0.1, 0.7, 0.2}}
	c := &Classifier{meta: DefaultClassifierMetadata(), runner: runner}

	got, err := c.Classify(context.Background(), solid(50, 30, color.White))
	require.NoError(t, err)

	assert.Equal(t, "benign", got.PredictedClass)
	assert.Equal(t, float32(0.7), got.Confidence)
	assert.Equal(t, map[string]float32{"normal": 0.1, "benign": 0.7, "malignant": 0.2}, got.Predictions)

	require.Len(t, runner.input, 224*224*3)
	assert.InDelta(t, 1.0, runner.input[0], 0.01)
}

func TestClassifier_TieTakesFirst(t *testing.T) {
	c := &Classifier{meta: DefaultClassifierMetadata(), runner: &fakeRunner{output: []float32{0.4, 0.4, 0.2}}}

	got, err := c.Classify(context.Background(), solid(4, 4, color.Black))
	require.NoError(t, err)
	assert.Equal(t, "normal", got.PredictedClass)
}

func TestClassifier_RunnerError(t *testing.T) {
	boom := errors.New("boom")
	c := &Classifier{meta: DefaultClassifierMetadata(), runner: &fakeRunner{err: boom}}

	_, err := c.Classify(context.Background(), solid(4, 4, color.Black))
	require.ErrorIs(t, err, boom)
}

func TestClassifier_WrongOutputLength(t *testing.T) {
	c := &Classifier{meta: DefaultClassifierMetadata(), runner: &fakeRunner{output: []float32{1}}}

	_, err := c.Classify(context.Background(), solid(4, 4, color.Black))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDenoiser_Denoise(t *testing.T) {
	out := make([]float32, 128*128)
	out[0] = 1
	out[1] = 0.5
	out[2] = 2
	runner := &fakeRunner{output: out}
	d := &Denoiser{meta: DefaultDenoiseMetadata(), runner: runner}

	img, err := d.Denoise(context.Background(), solid(300, 200, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 128, 128), img.Bounds())
	assert.Equal(t, uint8(255), img.Pix[0])
	assert.Equal(t, uint8(127), img.Pix[1])
	assert.Equal(t, uint8(255), img.Pix[2])
	assert.Equal(t, uint8(0), img.Pix[3])

	require.Len(t, runner.input, 128*128)
	assert.InDelta(t, 76.0/255.0, runner.input[64*128+64], 0.01)
}

func TestDenoiser_WrongOutputLength(t *testing.T) {
	d := &Denoiser{meta: DefaultDenoiseMetadata(), runner: &fakeRunner{output: make([]float32, 10)}}

	_, err := d.Denoise(context.Background(), solid(8, 8, color.White))
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	cr := &fakeRunner{}
	dr := &fakeRunner{}
	m := &Models{
		Classifier: &Classifier{runner: cr},
		Denoiser:   &Denoiser{runner: dr},
	}
	m.Close()
	m.Close()

	assert.True(t, cr.closed)
	assert.True(t, dr.closed)
}

func TestDefaultMetadataValid(t *testing.T) {
	require.NoError(t, DefaultClassifierMetadata().ValidateClassifier())
	require.NoError(t, DefaultDenoiseMetadata().ValidateDenoiser())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Metadata)
	}{
		{"classes/output mismatch", func(m *Metadata) { m.Classes = []string{"a", "b"} }},
		{"no classes", func(m *Metadata) { m.Classes = nil; m.OutputShape = []int64{1, 0} }},
		{"three dims", func(m *Metadata) { m.InputShape = []int64{224, 224, 3} }},
		{"batch of two", func(m *Metadata) { m.InputShape = []int64{2, 224, 224, 3} }},
		{"wrong layout", func(m *Metadata) { m.Layout = "HWC" }},
		{"gray input", func(m *Metadata) { m.InputShape = []int64{1, 224, 224, 1} }},
		{"size mismatch", func(m *Metadata) { m.ImageSize = 128 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := DefaultClassifierMetadata()
			tt.mutate(&meta)
			require.ErrorIs(t, meta.ValidateClassifier(), ErrInvalidMeta)
		})
	}

	t.Run("NCHW classifier", func(t *testing.T) {
		meta := DefaultClassifierMetadata()
		meta.Layout = imaging.NCHW
		meta.InputShape = []int64{1, 3, 224, 224}
		require.NoError(t, meta.ValidateClassifier())
	})

	t.Run("denoise output mismatch", func(t *testing.T) {
		meta := DefaultDenoiseMetadata()
		meta.OutputShape = []int64{1, 64, 64, 1}
		require.ErrorIs(t, meta.ValidateDenoiser(), ErrInvalidMeta)
	})
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file uses defaults", func(t *testing.T) {
		meta, found, err := LoadMetadata(filepath.Join(dir, "absent.json"), DefaultClassifierMetadata())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, DefaultClassifierMetadata(), meta)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "classifier.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"input_name": "input_1",
			"output_name": "dense_2",
			"input_shape": [1, 3, 224, 224],
			"layout": "NCHW"
		}`), 0o644))

		meta, found, err := LoadMetadata(path, DefaultClassifierMetadata())
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "input_1", meta.InputName)
		assert.Equal(t, "dense_2", meta.OutputName)
		assert.Equal(t, imaging.NCHW, meta.Layout)
		assert.Equal(t, []int64{1, 3}, meta.OutputShape)
		assert.Equal(t, []string{"normal", "benign", "malignant"}, meta.Classes)
		require.NoError(t, meta.ValidateClassifier())
	})

	t.Run("broken json", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"input_shape": [1,`), 0o644))

		_, _, err := LoadMetadata(path, DefaultDenoiseMetadata())
		require.Error(t, err)
	})
}

func TestNewSession_MissingModel(t *testing.T) {
	_, err := NewSession(filepath.Join(t.TempDir(), "absent.onnx"), DefaultClassifierMetadata())
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoadModels_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	logger := log.New("test")
	logger.SetLevel(log.OFF)

	models, err := LoadModels(context.Background(),
		ModelFiles{Model: filepath.Join(dir, "classifier.onnx")},
		ModelFiles{Model: filepath.Join(dir, "denoise.onnx")},
		logger)
	require.ErrorIs(t, err, ErrModelNotFound)
	assert.Nil(t, models)
}

func TestLoadModels_InvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "denoise.json")
	require.NoError(t, os.WriteFile(metaPath, []byte(`{"image_size": 64}`), 0o644))

	logger := log.New("test")
	logger.SetLevel(log.OFF)

	_, err := LoadModels(context.Background(),
		ModelFiles{Model: filepath.Join(dir, "classifier.onnx")},
		ModelFiles{Model: filepath.Join(dir, "denoise.onnx"), Metadata: metaPath},
		logger)
	require.Error(t, err)
}
