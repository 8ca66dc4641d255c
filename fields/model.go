package fields

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/observability"
)

// PageBounds is the document-space size of a page. Geometry mutations are
// clamped against these bounds.
type PageBounds struct {
	Width  float64 `validate:"gt=0"`
	Height float64 `validate:"gt=0"`
}

// Model is the authoritative set of fields and signers for one document.
// Geometry mutations never fail on out-of-range input: invalid geometry is
// coerced to the nearest valid value, so a drag always succeeds. The only
// errors are unknown IDs and unknown pages.
type Model struct {
	mu       sync.RWMutex
	pages    map[int]PageBounds
	fields   []*Field
	byID     map[string]*Field
	signers  []*Signer
	onChange []func()
	newID    func() string
	validate *validator.Validate
	log      observability.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for mutation diagnostics.
func WithLogger(l observability.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithIDGenerator overrides how field and signer IDs are minted. Mostly
// useful for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(m *Model) { m.newID = fn }
}

// NewModel builds an empty model over the given page bounds, keyed by 1-based
// page number.
func NewModel(pages map[int]PageBounds, opts ...Option) *Model {
	m := &Model{
		pages:    make(map[int]PageBounds, len(pages)),
		byID:     make(map[string]*Field),
		newID:    uuid.NewString,
		validate: validator.New(),
		log:      observability.NopLogger{},
	}
	for n, b := range pages {
		m.pages[n] = b
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a hook invoked after every successful mutation. Hooks
// run synchronously on the mutating goroutine, outside the model lock.
func (m *Model) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

func (m *Model) notify() {
	m.mu.RLock()
	hooks := make([]func(), len(m.onChange))
	copy(hooks, m.onChange)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// Create places a new field of the given type with its default size centered
// on anchor, clamped into page bounds.
func (m *Model) Create(t Type, pageNumber int, anchor coords.Point) (Field, error) {
	m.mu.Lock()
	bounds, ok := m.pages[pageNumber]
	if !ok {
		m.mu.Unlock()
		return Field{}, fmt.Errorf("fields: unknown page %d", pageNumber)
	}
	size := DefaultSize(t)
	f := &Field{
		ID:          m.newID(),
		Type:        t,
		PageNumber:  pageNumber,
		X:           anchor.X - size.W/2,
		Y:           anchor.Y - size.H/2,
		Width:       size.W,
		Height:      size.H,
		Placeholder: DefaultPlaceholder(t),
	}
	clampGeometry(f, bounds)
	m.fields = append(m.fields, f)
	m.byID[f.ID] = f
	out := *f
	m.mu.Unlock()

	m.log.Debug("field created",
		observability.String("id", out.ID),
		observability.String("type", string(t)),
		observability.Int("page", pageNumber))
	m.notify()
	return out, nil
}

// Move repositions a field's top-left corner, clamped into page bounds.
func (m *Model) Move(id string, topLeft coords.Point) error {
	return m.mutate(id, func(f *Field, b PageBounds) {
		f.X = topLeft.X
		f.Y = topLeft.Y
		clampGeometry(f, b)
	})
}

// Resize sets a field's size, clamped to the type minimum and page bounds.
func (m *Model) Resize(id string, size coords.Size) error {
	return m.mutate(id, func(f *Field, b PageBounds) {
		f.Width = size.W
		f.Height = size.H
		clampGeometry(f, b)
	})
}

// Assign routes a field to a signer, or back to unassigned with "".
func (m *Model) Assign(id, signerID string) error {
	m.mu.Lock()
	f, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown field %q", id)
	}
	if signerID != "" && m.findSigner(signerID) == nil {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown signer %q", signerID)
	}
	f.AssignedTo = signerID
	m.mu.Unlock()
	m.notify()
	return nil
}

// SetValue records a field's value. Geometry and assignment are untouched;
// this is the only mutation the signing flow performs.
func (m *Model) SetValue(id, value string) error {
	m.mu.Lock()
	f, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown field %q", id)
	}
	f.Value = value
	m.mu.Unlock()
	m.notify()
	return nil
}

// Delete removes a field.
func (m *Model) Delete(id string) error {
	m.mu.Lock()
	if _, ok := m.byID[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown field %q", id)
	}
	delete(m.byID, id)
	for i, f := range m.fields {
		if f.ID == id {
			m.fields = append(m.fields[:i], m.fields[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

// Field returns a copy of the field with the given ID.
func (m *Model) Field(id string) (Field, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.byID[id]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Fields returns copies of all fields in creation order.
func (m *Model) Fields() []Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Field, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, *f)
	}
	return out
}

// FieldsOn returns the fields on a page in reading order (top to bottom,
// then left to right).
func (m *Model) FieldsOn(pageNumber int) []Field {
	m.mu.RLock()
	var out []Field
	for _, f := range m.fields {
		if f.PageNumber == pageNumber {
			out = append(out, *f)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// PageBounds returns the registered bounds for a page.
func (m *Model) PageBounds(pageNumber int) (PageBounds, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.pages[pageNumber]
	return b, ok
}

// AddSigner registers a new signer.
func (m *Model) AddSigner(name, email string, order int) Signer {
	m.mu.Lock()
	s := &Signer{ID: m.newID(), Name: name, Email: email, Order: order}
	m.signers = append(m.signers, s)
	out := *s
	m.mu.Unlock()
	m.notify()
	return out
}

// UpdateSigner replaces a signer's name, email and order. Signed state is
// deliberately not writable here.
func (m *Model) UpdateSigner(id, name, email string, order int) error {
	m.mu.Lock()
	s := m.findSigner(id)
	if s == nil {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown signer %q", id)
	}
	s.Name, s.Email, s.Order = name, email, order
	m.mu.Unlock()
	m.notify()
	return nil
}

// RemoveSigner deletes a signer. Fields assigned to the signer cascade to
// unassigned; no field is ever deleted by this path.
func (m *Model) RemoveSigner(id string) error {
	m.mu.Lock()
	idx := -1
	for i, s := range m.signers {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown signer %q", id)
	}
	m.signers = append(m.signers[:idx], m.signers[idx+1:]...)
	reassigned := 0
	for _, f := range m.fields {
		if f.AssignedTo == id {
			f.AssignedTo = ""
			reassigned++
		}
	}
	m.mu.Unlock()
	m.log.Debug("signer removed",
		observability.String("id", id),
		observability.Int("fields_unassigned", reassigned))
	m.notify()
	return nil
}

// MarkSigned records a completed signing pass for the signer. Called only by
// the submission step.
func (m *Model) MarkSigned(signerID string, at time.Time) error {
	m.mu.Lock()
	s := m.findSigner(signerID)
	if s == nil {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown signer %q", signerID)
	}
	s.Signed = true
	s.SignedAt = at
	m.mu.Unlock()
	m.notify()
	return nil
}

// Signers returns copies of all signers ordered by routing order.
func (m *Model) Signers() []Signer {
	m.mu.RLock()
	out := make([]Signer, 0, len(m.signers))
	for _, s := range m.signers {
		out = append(out, *s)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// SignerByEmail looks a signer up by email address.
func (m *Model) SignerByEmail(email string) (Signer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.signers {
		if s.Email == email {
			return *s, true
		}
	}
	return Signer{}, false
}

// Load replaces the model contents with data fetched from the persistence
// collaborator. Every record is structurally validated and every field is
// re-clamped, so a document saved by an older client still satisfies the
// geometry invariants after loading.
func (m *Model) Load(fs []Field, signers []Signer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range fs {
		if err := m.validate.Struct(&fs[i]); err != nil {
			return fmt.Errorf("fields: invalid field %d: %w", i, err)
		}
		if _, ok := m.pages[fs[i].PageNumber]; !ok {
			return fmt.Errorf("fields: field %q references unknown page %d", fs[i].ID, fs[i].PageNumber)
		}
	}
	for i := range signers {
		if err := m.validate.Struct(&signers[i]); err != nil {
			return fmt.Errorf("fields: invalid signer %d: %w", i, err)
		}
	}
	m.fields = m.fields[:0]
	m.byID = make(map[string]*Field, len(fs))
	for i := range fs {
		f := fs[i]
		clampGeometry(&f, m.pages[f.PageNumber])
		p := &f
		m.fields = append(m.fields, p)
		m.byID[f.ID] = p
	}
	m.signers = m.signers[:0]
	for i := range signers {
		s := signers[i]
		m.signers = append(m.signers, &s)
	}
	return nil
}

// Validate runs structural validation over the current contents.
func (m *Model) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.fields {
		if err := m.validate.Struct(f); err != nil {
			return fmt.Errorf("fields: field %q: %w", f.ID, err)
		}
	}
	for _, s := range m.signers {
		if err := m.validate.Struct(s); err != nil {
			return fmt.Errorf("fields: signer %q: %w", s.ID, err)
		}
	}
	return nil
}

func (m *Model) mutate(id string, fn func(*Field, PageBounds)) error {
	m.mu.Lock()
	f, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fields: unknown field %q", id)
	}
	bounds := m.pages[f.PageNumber]
	fn(f, bounds)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Model) findSigner(id string) *Signer {
	for _, s := range m.signers {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// clampGeometry coerces a field's geometry into the type minimum and the
// page bounds. Size wins over position: the field is first grown to its
// minimum and capped to the page, then shifted back inside.
func clampGeometry(f *Field, b PageBounds) {
	min := MinSize(f.Type)
	f.Width = math.Max(f.Width, min.W)
	f.Height = math.Max(f.Height, min.H)
	if b.Width > 0 {
		f.Width = math.Min(f.Width, b.Width)
	}
	if b.Height > 0 {
		f.Height = math.Min(f.Height, b.Height)
	}
	f.X = math.Max(0, math.Min(f.X, b.Width-f.Width))
	f.Y = math.Max(0, math.Min(f.Y, b.Height-f.Height))
}
