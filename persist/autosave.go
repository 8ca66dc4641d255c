package persist

import (
	"context"
	"sync"
	"time"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
)

// DefaultAutosaveDelay is how long after the last change an autosave fires.
const DefaultAutosaveDelay = 2 * time.Second

// Autosaver debounces model changes into background saves. Autosaves are
// fire-and-forget: a failure is surfaced through the notice callback (toast
// level) and never blocks further local edits. Flush forces a synchronous
// save for the explicit Save/Send path.
type Autosaver struct {
	client *Client
	docID  string
	model  *fields.Model
	delay  time.Duration
	notice func(error)
	log    observability.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// WithDelay overrides the debounce delay.
func WithDelay(d time.Duration) AutosaveOption {
	return func(a *Autosaver) {
		if d > 0 {
			a.delay = d
		}
	}
}

// WithNotice sets the callback invoked when an autosave fails.
func WithNotice(fn func(error)) AutosaveOption {
	return func(a *Autosaver) { a.notice = fn }
}

// WithAutosaveLogger sets the logger.
func WithAutosaveLogger(l observability.Logger) AutosaveOption {
	return func(a *Autosaver) { a.log = l }
}

// NewAutosaver wires the autosaver to the model's change feed.
func NewAutosaver(client *Client, documentID string, model *fields.Model, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		client: client,
		docID:  documentID,
		model:  model,
		delay:  DefaultAutosaveDelay,
		notice: func(error) {},
		log:    observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	model.OnChange(a.touch)
	return a
}

// touch restarts the debounce window; only the last change in a burst
// triggers a save.
func (a *Autosaver) touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, func() {
		start := time.Now()
		if err := a.save(context.Background()); err != nil {
			a.log.Warn("autosave failed", observability.Error("err", err))
			a.notice(err)
			return
		}
		a.log.Debug("autosaved",
			observability.String("document", a.docID),
			observability.Float64(observability.MetricAutosaveTime, time.Since(start).Seconds()))
	})
}

// Flush cancels any pending autosave and saves synchronously.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	return a.save(ctx)
}

// Close stops future autosaves. Pending timers are cancelled.
func (a *Autosaver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Autosaver) save(ctx context.Context) error {
	if err := a.client.PutFields(ctx, a.docID, a.model.Fields()); err != nil {
		return err
	}
	return a.client.PutSigners(ctx, a.docID, a.model.Signers())
}
