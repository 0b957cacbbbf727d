// Package imaging converts uploaded images to model input tensors and model
// output tensors back to images.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUndecodable = errors.New("image could not be decoded")

// Layout is the memory order of a 4-D image tensor with batch size 1.
type Layout string

const (
	NHWC Layout = "NHWC"
	NCHW Layout = "NCHW"
)

func (l Layout) Valid() bool {
	return l == NHWC || l == NCHW
}

// Decode reads any registered image format. The format name is returned too.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, format, nil
}

// Resize scales img to exactly width x height with bicubic interpolation.
// Aspect ratio is not preserved.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bicubic)
}

// RGBTensor returns the R, G and B channels of img scaled to [0, 1].
// Alpha is dropped without premultiplying.
func RGBTensor(img image.Image, layout Layout) []float32 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			bl := float32(c.B) / 255.0

			pixelIndex := y*width + x
			if layout == NCHW {
				data[pixelIndex] = r
				data[plane+pixelIndex] = g
				data[2*plane+pixelIndex] = bl
			} else {
				data[3*pixelIndex] = r
				data[3*pixelIndex+1] = g
				data[3*pixelIndex+2] = bl
			}
		}
	}
	return data
}

// GrayTensor returns the luma of img scaled to [0, 1], one value per pixel.
func GrayTensor(img image.Image) []float32 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	data := make([]float32, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			data[y*width+x] = float32(Luma(c.R, c.G, c.B)) / 255.0
		}
	}
	return data
}

// Luma is the ITU-R 601-2 transform in the same fixed point arithmetic PIL
// uses for mode "L".
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// GrayImage builds a width x height grayscale image from values in [0, 1].
// Out of range values are clamped before the uint8 truncation.
func GrayImage(values []float32, width, height int) (*image.Gray, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("expected %d values for %dx%d image, got %d", width*height, width, height, len(values))
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range values {
		switch {
		case v != v, v <= 0: // NaN maps to black
			v = 0
		case v > 1:
			v = 1
		}
		img.Pix[i] = uint8(v * 255)
	}
	return img, nil
}

func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
