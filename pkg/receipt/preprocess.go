package receipt

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const minHeight = 900

// Preprocess prepares a photographed receipt for OCR.
func Preprocess(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < minHeight {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	return binarize(gray, 200)
}

// binarize applies a global threshold to a grayscale image.
func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := imaging.New(b.Dx(), b.Dy(), color.NRGBA{255, 255, 255, 255})
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.NRGBAAt(b.Min.X+x, b.Min.Y+y).R <= threshold {
				out.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return out
}
