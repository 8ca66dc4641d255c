package raster

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/wudi/signkit/observability"
)

// The pdfium webassembly runtime is expensive to initialize, so one pool is
// shared by every open PDF document in the process.
var (
	pdfiumOnce sync.Once
	pdfiumPool pdfium.Pool
	pdfiumErr  error
)

func pdfiumInstance() (pdfium.Pdfium, error) {
	pdfiumOnce.Do(func() {
		pdfiumPool, pdfiumErr = webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  2,
			MaxTotal: 4,
		})
	})
	if pdfiumErr != nil {
		return nil, fmt.Errorf("raster: init pdfium: %w", pdfiumErr)
	}
	instance, err := pdfiumPool.GetInstance(30 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("raster: acquire pdfium instance: %w", err)
	}
	return instance, nil
}

type pageSize struct{ w, h float64 }

// pdfRenderer rasterizes PDF pages through pdfium. Every RenderPage call
// opens the document on its own pooled instance, which is what makes pages
// renderable in parallel and every returned bitmap a fresh buffer.
type pdfRenderer struct {
	data      []byte
	pageCount int
	sizes     []pageSize
	scale     float64
	log       observability.Logger
}

func openPDF(ctx context.Context, data []byte, cfg config) (*pdfRenderer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	instance, err := pdfiumInstance()
	if err != nil {
		return nil, err
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return nil, fmt.Errorf("raster: open pdf: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		return nil, fmt.Errorf("raster: page count: %w", err)
	}

	sizes := make([]pageSize, count.PageCount)
	for i := 0; i < count.PageCount; i++ {
		sz, err := instance.GetPageSize(&requests.GetPageSize{
			Page: requests.Page{ByIndex: &requests.PageByIndex{Document: doc.Document, Index: i}},
		})
		if err != nil {
			return nil, fmt.Errorf("raster: size of page %d: %w", i+1, err)
		}
		sizes[i] = pageSize{w: sz.Width, h: sz.Height}
	}

	return &pdfRenderer{
		data:      data,
		pageCount: count.PageCount,
		sizes:     sizes,
		scale:     cfg.pdfScale,
		log:       cfg.log,
	}, nil
}

func (r *pdfRenderer) PageCount() int { return r.pageCount }

func (r *pdfRenderer) RenderPage(ctx context.Context, pageNumber int) (*Page, error) {
	if pageNumber < 1 || pageNumber > r.pageCount {
		return nil, fmt.Errorf("raster: page %d out of range [1,%d]", pageNumber, r.pageCount)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instance, err := pdfiumInstance()
	if err != nil {
		return nil, err
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &r.data})
	if err != nil {
		return nil, fmt.Errorf("raster: open pdf: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	dpi := int(math.Round(72 * r.scale))
	rendered, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{Document: doc.Document, Index: pageNumber - 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("raster: render page %d: %w", pageNumber, err)
	}

	// Copy out of the pdfium-owned buffer so the bitmap stays valid after
	// the instance goes back to the pool.
	src := rendered.Result.Image
	bounds := src.Bounds()
	bitmap := image.NewRGBA(bounds)
	draw.Draw(bitmap, bounds, src, bounds.Min, draw.Src)

	size := r.sizes[pageNumber-1]
	r.log.Debug("pdf page rendered",
		observability.Int("page", pageNumber),
		observability.Int("dpi", dpi),
		observability.Int("width", bounds.Dx()),
		observability.Int("height", bounds.Dy()))
	return &Page{
		PageNumber:     pageNumber,
		Bitmap:         bitmap,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		OriginalWidth:  size.w,
		OriginalHeight: size.h,
	}, nil
}

func (r *pdfRenderer) Close() error { return nil }
