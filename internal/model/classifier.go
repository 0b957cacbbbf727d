package model

import (
	"context"
	"fmt"
	"image"

	"github.com/Xenocryptix/inference-webapp/internal/imaging"
)

// Classifier labels an RGB image with one of Metadata.Classes.
type Classifier struct {
	meta   Metadata
	runner runner
}

func NewClassifier(files ModelFiles) (*Classifier, error) {
	meta, _, err := LoadMetadata(files.Metadata, DefaultClassifierMetadata())
	if err != nil {
		return nil, err
	}
	if err := meta.ValidateClassifier(); err != nil {
		return nil, err
	}

	session, err := NewSession(files.Model, meta)
	if err != nil {
		return nil, err
	}
	return &Classifier{meta: meta, runner: session}, nil
}

func (c *Classifier) Metadata() Metadata {
	return c.meta
}

// Classify resizes img to the model input, runs it and reports the arg max.
func (c *Classifier) Classify(ctx context.Context, img image.Image) (*Prediction, error) {
	resized := imaging.Resize(img, c.meta.ImageSize, c.meta.ImageSize)
	input := imaging.RGBTensor(resized, c.meta.Layout)

	outputData, err := c.runner.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return c.decode(outputData)
}

func (c *Classifier) decode(outputData []float32) (*Prediction, error) {
	if len(outputData) != len(c.meta.Classes) {
		return nil, fmt.Errorf("%w: %d scores for %d classes", ErrShapeMismatch, len(outputData), len(c.meta.Classes))
	}

	maxIdx := 0
	maxVal := outputData[0]
	predictions := make(map[string]float32, len(c.meta.Classes))

	for i, val := range outputData {
		predictions[c.meta.Classes[i]] = val
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	return &Prediction{
		PredictedClass: c.meta.Classes[maxIdx],
		Confidence:     maxVal,
		Predictions:    predictions,
	}, nil
}

func (c *Classifier) Close() {
	if c.runner != nil {
		c.runner.Close()
	}
}
