package raster

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wudi/signkit/observability"
)

// DocumentRasterizer renders every page of a document concurrently. Pages
// fail independently: a malformed page yields an error-marker Page without
// blocking the rest, and only a document where no page rendered at all is
// treated as fatal.
type DocumentRasterizer struct {
	renderer Renderer
	sem      *semaphore.Weighted
	log      observability.Logger
	tracer   observability.Tracer
}

// NewDocumentRasterizer wraps a page Renderer with concurrent fan-out.
func NewDocumentRasterizer(r Renderer, opts ...Option) *DocumentRasterizer {
	cfg := newConfig(opts)
	return &DocumentRasterizer{
		renderer: r,
		sem:      semaphore.NewWeighted(cfg.maxConcurrent),
		log:      cfg.log,
		tracer:   cfg.tracer,
	}
}

// RenderAll rasterizes all pages and returns them in page order. The slice
// always has one entry per page; entries whose render failed have Err set
// and no bitmap. ErrNoPagesRendered is returned if every page failed.
func (d *DocumentRasterizer) RenderAll(ctx context.Context) ([]*Page, error) {
	ctx, span := d.tracer.StartSpan(ctx, "raster.RenderAll")
	defer span.Finish()

	total := d.renderer.PageCount()
	span.SetTag(observability.MetricRasterPages, total)
	pages := make([]*Page, total)

	var g errgroup.Group
	for i := 0; i < total; i++ {
		pageNumber := i + 1
		slot := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				pages[slot] = &Page{PageNumber: pageNumber, Err: err}
				return nil
			}
			if err := d.sem.Acquire(ctx, 1); err != nil {
				pages[slot] = &Page{PageNumber: pageNumber, Err: err}
				return nil
			}
			defer d.sem.Release(1)

			p, err := d.renderer.RenderPage(ctx, pageNumber)
			if err != nil {
				d.log.Warn("page render failed",
					observability.Int("page", pageNumber),
					observability.Error("err", err))
				pages[slot] = &Page{PageNumber: pageNumber, Err: err}
				return nil
			}
			pages[slot] = p
			return nil
		})
	}
	// Goroutines report failures through the page slots, never as group
	// errors, so one bad page cannot cancel its siblings.
	_ = g.Wait()

	rendered := 0
	for _, p := range pages {
		if p.Err == nil {
			rendered++
		}
	}
	d.log.Info("document rasterized",
		observability.Int("pages", total),
		observability.Int("rendered", rendered))
	if total > 0 && rendered == 0 {
		span.SetError(ErrNoPagesRendered)
		return pages, ErrNoPagesRendered
	}
	return pages, nil
}
