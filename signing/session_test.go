package signing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/validation"
)

type fakeSubmitter struct {
	calls  int
	err    error
	last   map[string]string
	during func()
}

func (f *fakeSubmitter) Submit(ctx context.Context, docID, email, token string, values map[string]string) error {
	f.calls++
	f.last = values
	if f.during != nil {
		f.during()
	}
	return f.err
}

// twoPageSetup mirrors the guided scenario: a required text field on page 1
// and a required signature field on page 2, both assigned to one signer.
func twoPageSetup(t *testing.T) (*fields.Model, fields.Signer, fields.Field, fields.Field) {
	t.Helper()
	n := 2
	m := fields.NewModel(
		map[int]fields.PageBounds{1: {Width: 612, Height: 792}, 2: {Width: 612, Height: 792}},
		fields.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	signer := m.AddSigner("Jane Doe", "jane@example.com", 0)
	text := fields.Field{
		ID: "id-1", Type: fields.TypeText, PageNumber: 1,
		X: 110, Y: 282, Width: 180, Height: 36,
		Required: true, AssignedTo: signer.ID,
	}
	sig := fields.Field{
		ID: "id-2", Type: fields.TypeSignature, PageNumber: 2,
		X: 120, Y: 572, Width: 160, Height: 56,
		Required: true, AssignedTo: signer.ID,
	}
	require.NoError(t, m.Load([]fields.Field{text, sig}, m.Signers()))
	return m, signer, text, sig
}

func newSession(t *testing.T, m *fields.Model, sub Submitter, cfg Config) *Session {
	t.Helper()
	s, err := NewSession(m, validation.NewEngine(), sub, cfg)
	require.NoError(t, err)
	return s
}

func baseConfig() Config {
	return Config{DocumentID: "doc-1", SignerEmail: "jane@example.com", Token: "tok-123"}
}

func TestAccessGating(t *testing.T) {
	m, _, _, _ := twoPageSetup(t)
	v := validation.NewEngine()

	var accessErr *AccessError
	_, err := NewSession(m, v, &fakeSubmitter{}, Config{SignerEmail: "jane@example.com"})
	require.ErrorAs(t, err, &accessErr)

	_, err = NewSession(m, v, &fakeSubmitter{}, Config{Token: "tok"})
	require.ErrorAs(t, err, &accessErr)

	_, err = NewSession(m, v, &fakeSubmitter{}, Config{Token: "tok", SignerEmail: "ghost@example.com"})
	require.ErrorAs(t, err, &accessErr)
}

func TestGuidedScenario(t *testing.T) {
	m, _, text, sig := twoPageSetup(t)
	sub := &fakeSubmitter{}
	s := newSession(t, m, sub, baseConfig())

	assert.Equal(t, StateNotStarted, s.State())
	require.ErrorIs(t, s.Complete("x"), ErrNotStarted)

	require.NoError(t, s.Start())
	assert.Equal(t, StateFieldActive, s.State())
	assert.Equal(t, 0, s.ActiveIndex())
	active, ok := s.ActiveField()
	require.True(t, ok)
	assert.Equal(t, text.ID, active.ID)

	// Filling the text field advances to the signature field.
	require.NoError(t, s.Complete("Jane Doe"))
	assert.Equal(t, 1, s.ActiveIndex())
	active, _ = s.ActiveField()
	assert.Equal(t, sig.ID, active.ID)

	// Signature still empty: submit stays disabled and Submit refuses.
	assert.False(t, s.CanSubmit())
	err := s.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, sig.ID)
	assert.Zero(t, sub.calls)

	require.NoError(t, s.Complete("Jane Doe (signed)"))
	assert.True(t, s.CanSubmit())

	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, StateSubmitted, s.State())
	assert.Equal(t, "Jane Doe", sub.last[text.ID])

	signer, _ := m.SignerByEmail("jane@example.com")
	assert.True(t, signer.Signed)
	assert.False(t, signer.SignedAt.IsZero())

	require.ErrorIs(t, s.Submit(context.Background()), ErrAlreadySubmitted)
	assert.Equal(t, 1, sub.calls)
}

func TestSubmitRollsBackOnFailure(t *testing.T) {
	m, _, text, sig := twoPageSetup(t)
	sub := &fakeSubmitter{err: errors.New("persistence down")}
	s := newSession(t, m, sub, baseConfig())
	require.NoError(t, s.Start())
	require.NoError(t, s.SetValue(text.ID, "Jane"))
	require.NoError(t, s.SetValue(sig.ID, "Jane"))

	err := s.Submit(context.Background())
	var serr *SubmitError
	require.ErrorAs(t, err, &serr)

	// Rolled back: still field-active, still submittable, signer untouched.
	assert.Equal(t, StateFieldActive, s.State())
	assert.True(t, s.CanSubmit())
	signer, _ := m.SignerByEmail("jane@example.com")
	assert.False(t, signer.Signed)

	// Retry succeeds.
	sub.err = nil
	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, 2, sub.calls)
	assert.Equal(t, StateSubmitted, s.State())
}

func TestDoubleSubmitRejected(t *testing.T) {
	m, _, text, sig := twoPageSetup(t)
	sub := &fakeSubmitter{}
	var s *Session
	var reentrant error
	sub.during = func() {
		// While the call is in flight the submit action must be disabled.
		assert.False(t, s.CanSubmit())
		reentrant = s.Submit(context.Background())
	}
	s = newSession(t, m, sub, baseConfig())
	require.NoError(t, s.Start())
	require.NoError(t, s.SetValue(text.ID, "Jane"))
	require.NoError(t, s.SetValue(sig.ID, "Jane"))

	require.NoError(t, s.Submit(context.Background()))
	require.ErrorIs(t, reentrant, ErrSubmitInFlight)
	assert.Equal(t, 1, sub.calls)
}

func TestFreeNavigation(t *testing.T) {
	m, _, text, sig := twoPageSetup(t)
	s := newSession(t, m, &fakeSubmitter{}, baseConfig())
	require.NoError(t, s.Start())

	// Jumping ahead never requires prior fields to be complete.
	require.NoError(t, s.Jump(sig.ID))
	assert.Equal(t, 1, s.ActiveIndex())
	require.NoError(t, s.Jump(text.ID))
	assert.Equal(t, 0, s.ActiveIndex())
	s.Next()
	assert.Equal(t, 1, s.ActiveIndex())
	s.Next()
	assert.Equal(t, 1, s.ActiveIndex())
	s.Prev()
	s.Prev()
	assert.Equal(t, 0, s.ActiveIndex())

	require.ErrorIs(t, s.Jump("ghost"), ErrFieldNotInSession)
}

func TestProgressDerivedAndStable(t *testing.T) {
	m, _, text, sig := twoPageSetup(t)
	s := newSession(t, m, &fakeSubmitter{}, baseConfig())
	require.NoError(t, s.Start())

	assert.Equal(t, 0, s.Progress())
	require.NoError(t, s.SetValue(text.ID, "Jane"))
	assert.Equal(t, 50, s.Progress())
	require.NoError(t, s.SetValue(sig.ID, "Jane"))
	assert.Equal(t, 100, s.Progress())

	// Clearing then refilling with the same value lands on the same number.
	require.NoError(t, s.SetValue(text.ID, ""))
	assert.Equal(t, 50, s.Progress())
	require.NoError(t, s.SetValue(text.ID, "Jane"))
	assert.Equal(t, 100, s.Progress())
}

func TestLiveValidationErrors(t *testing.T) {
	n := 0
	m := fields.NewModel(map[int]fields.PageBounds{1: {Width: 612, Height: 792}},
		fields.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }))
	m.AddSigner("Jane", "jane@example.com", 0)
	d, err := m.Create(fields.TypeDate, 1, coords.Point{X: 100, Y: 100})
	require.NoError(t, err)

	s := newSession(t, m, &fakeSubmitter{}, baseConfig())
	require.NoError(t, s.Start())

	require.NoError(t, s.SetValue(d.ID, "2026-02-30"))
	assert.Equal(t, validation.MsgInvalidDate, s.FieldError(d.ID))
	require.NoError(t, s.SetValue(d.ID, "2026-02-27"))
	assert.Empty(t, s.FieldError(d.ID))
}

func TestUnassignedFieldsIncluded(t *testing.T) {
	m, _, _, _ := twoPageSetup(t)
	other := m.AddSigner("John", "john@example.com", 1)
	unassigned, err := m.Create(fields.TypeCheckbox, 1, coords.Point{X: 50, Y: 50})
	require.NoError(t, err)
	theirs, err := m.Create(fields.TypeText, 1, coords.Point{X: 400, Y: 50})
	require.NoError(t, err)
	require.NoError(t, m.Assign(theirs.ID, other.ID))

	s := newSession(t, m, &fakeSubmitter{}, baseConfig())
	ids := make(map[string]bool)
	for _, f := range s.Fields() {
		ids[f.ID] = true
	}
	assert.True(t, ids[unassigned.ID], "unassigned fields belong to every signer's session")
	assert.False(t, ids[theirs.ID], "another signer's fields are out of scope")
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.SetValue(theirs.ID, "x"), ErrFieldNotInSession)
}

func TestConsentGate(t *testing.T) {
	m, _, _, _ := twoPageSetup(t)
	cfg := baseConfig()
	cfg.DisclosureMarkdown = "# Disclosure\n\nBy signing you **agree**."
	cfg.RequireConsent = true
	s := newSession(t, m, &fakeSubmitter{}, cfg)

	html, err := s.DisclosureHTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>")
	assert.Contains(t, html, "<strong>agree</strong>")

	require.ErrorIs(t, s.Start(), ErrConsentRequired)
	s.Consent()
	require.NoError(t, s.Start())
}

func TestAlreadySignedSignerDenied(t *testing.T) {
	m, signer, _, _ := twoPageSetup(t)
	require.NoError(t, m.MarkSigned(signer.ID, time.Now()))
	var accessErr *AccessError
	_, err := NewSession(m, validation.NewEngine(), &fakeSubmitter{}, baseConfig())
	require.ErrorAs(t, err, &accessErr)
}
