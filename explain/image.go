package explain

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
)

// ImageLoadError reports a sample image that is missing, unreadable or not
// decodable. It is fatal for the whole run.
type ImageLoadError struct {
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// loadSampleImage reads the image at path and returns it as JPEG bytes with
// any alpha, grayscale or palette flattened to 3-channel color. Transparent
// regions are composited over white.
func loadSampleImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}

	rgb := image.NewRGBA(img.Bounds())
	draw.Draw(rgb, rgb.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgb, rgb.Bounds(), img, img.Bounds().Min, draw.Over)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, rgb, &jpeg.Options{Quality: 90}); err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}

	return buf.Bytes(), nil
}
