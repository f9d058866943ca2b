package render

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

// LoadOrtho decodes a PNG or JPEG ortho image.
func LoadOrtho(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ortho image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding ortho image: %w", err)
	}
	return img, nil
}

// ResampleOrtho scales src to w x h with a Catmull-Rom filter and returns
// one colour in [0, 1] per pixel, row-major.
func ResampleOrtho(src image.Image, w, h int) [][3]float64 {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := make([][3]float64, w*h)
	for y := range h {
		for x := range w {
			i := dst.PixOffset(x, y)
			out[y*w+x] = [3]float64{
				float64(dst.Pix[i]) / 255,
				float64(dst.Pix[i+1]) / 255,
				float64(dst.Pix[i+2]) / 255,
			}
		}
	}
	return out
}
