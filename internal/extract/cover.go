package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"
)

const (
	coverWidth  = 140
	coverHeight = 210
	jpegQuality = 70
)

// renderCover rasterizes page one and center-crops it to fill the cover
// canvas. The result is always a coverWidth x coverHeight JPEG.
func renderCover(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	bound, err := doc.Bound(0)
	if err != nil {
		return nil, fmt.Errorf("page bounds: %w", err)
	}
	pageW, pageH := bound.Dx(), bound.Dy()
	if pageW <= 0 || pageH <= 0 {
		return nil, fmt.Errorf("degenerate page bounds %dx%d", pageW, pageH)
	}

	rect := coverCropRect(pageW, pageH)

	// Render at roughly the pixel density the crop needs; bounds are in
	// points (72 per inch).
	dpi := 72 * float64(rect.Dx()) / float64(pageW)
	page, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, coverWidth, coverHeight))
	draw.CatmullRom.Scale(dst, rect, page, page.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	return buf.Bytes(), nil
}

// coverCropRect returns the destination rectangle for scaling a page of the
// given dimensions onto the cover canvas. The page keeps its aspect ratio
// and overflows the canvas on its longer axis; the negative offset centers
// the overflow so drawing into the canvas crops equally on both sides.
func coverCropRect(pageW, pageH int) image.Rectangle {
	pageRatio := float64(pageW) / float64(pageH)
	cardRatio := float64(coverWidth) / float64(coverHeight)
	if pageRatio > cardRatio {
		w := int(math.Round(pageRatio * coverHeight))
		offsetX := -(w - coverWidth) / 2
		return image.Rect(offsetX, 0, offsetX+w, coverHeight)
	}
	h := int(math.Round(coverWidth / pageRatio))
	offsetY := -(h - coverHeight) / 2
	return image.Rect(0, offsetY, coverWidth, offsetY+h)
}
