package model

import (
	"context"
	"image"

	"github.com/Xenocryptix/inference-webapp/internal/imaging"
)

// Denoiser runs the grayscale autoencoder.
type Denoiser struct {
	meta   Metadata
	runner runner
}

func NewDenoiser(files ModelFiles) (*Denoiser, error) {
	meta, _, err := LoadMetadata(files.Metadata, DefaultDenoiseMetadata())
	if err != nil {
		return nil, err
	}
	if err := meta.ValidateDenoiser(); err != nil {
		return nil, err
	}

	session, err := NewSession(files.Model, meta)
	if err != nil {
		return nil, err
	}
	return &Denoiser{meta: meta, runner: session}, nil
}

func (d *Denoiser) Metadata() Metadata {
	return d.meta
}

// Denoise returns an ImageSize x ImageSize grayscale image whatever the size
// of img. Resizing happens before the gray conversion.
func (d *Denoiser) Denoise(ctx context.Context, img image.Image) (*image.Gray, error) {
	size := d.meta.ImageSize
	resized := imaging.Resize(img, size, size)
	input := imaging.GrayTensor(resized)

	outputData, err := d.runner.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return imaging.GrayImage(outputData, size, size)
}

func (d *Denoiser) Close() {
	if d.runner != nil {
		d.runner.Close()
	}
}
