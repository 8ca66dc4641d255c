package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/wudi/signkit/observability"
)

// imageRenderer treats a single raster image as a one-page document. The
// source's pixel dimensions are its document-space units; the bitmap is
// upscaled by the oversampling factor so it survives zooming in.
type imageRenderer struct {
	data  []byte
	w, h  int
	scale float64
	log   observability.Logger
}

func openImage(data []byte, cfg config) (*imageRenderer, error) {
	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("raster: decode image config: %w", err)
	}
	return &imageRenderer{
		data:  data,
		w:     imgCfg.Width,
		h:     imgCfg.Height,
		scale: cfg.imageScale,
		log:   cfg.log,
	}, nil
}

func (r *imageRenderer) PageCount() int { return 1 }

func (r *imageRenderer) RenderPage(ctx context.Context, pageNumber int) (*Page, error) {
	if pageNumber != 1 {
		return nil, fmt.Errorf("raster: page %d out of range (image document has 1 page)", pageNumber)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Decode fresh each call; the returned buffer must never be shared with
	// a bitmap already handed out.
	src, _, err := image.Decode(bytes.NewReader(r.data))
	if err != nil {
		return nil, fmt.Errorf("raster: decode image: %w", err)
	}
	dw := int(math.Round(float64(r.w) * r.scale))
	dh := int(math.Round(float64(r.h) * r.scale))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	r.log.Debug("image page rendered",
		observability.Int("width", dw),
		observability.Int("height", dh),
		observability.Float64("scale", r.scale))
	return &Page{
		PageNumber:     1,
		Bitmap:         dst,
		Width:          dw,
		Height:         dh,
		OriginalWidth:  float64(r.w),
		OriginalHeight: float64(r.h),
	}, nil
}

func (r *imageRenderer) Close() error { return nil }
