package model

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
)

type Models struct {
	Classifier *Classifier
	Denoiser   *Denoiser
}

// LoadModels opens both models concurrently. On failure nothing stays open.
func LoadModels(ctx context.Context, classifier, denoiser ModelFiles, logger *log.Logger) (*Models, error) {
	models := &Models{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Infof("Loading classification model from: %s", classifier.Model)
		c, err := NewClassifier(classifier)
		if err != nil {
			return fmt.Errorf("classification model: %w", err)
		}
		models.Classifier = c
		logger.Infof("Classes: %v", c.meta.Classes)
		return nil
	})

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Infof("Loading denoise model from: %s", denoiser.Model)
		d, err := NewDenoiser(denoiser)
		if err != nil {
			return fmt.Errorf("denoise model: %w", err)
		}
		models.Denoiser = d
		logger.Infof("Denoise input: %dx%d grayscale", d.meta.ImageSize, d.meta.ImageSize)
		return nil
	})

	if err := g.Wait(); err != nil {
		models.Close()
		return nil, err
	}
	return models, nil
}

func (m *Models) Close() {
	if m.Classifier != nil {
		m.Classifier.Close()
		m.Classifier = nil
	}
	if m.Denoiser != nil {
		m.Denoiser.Close()
		m.Denoiser = nil
	}
}
