// Package signing drives a single signer through their field subsequence to
// one atomic submission. Navigation is free — any field may be visited at any
// time — but submission is gated on every required field validating. This
// split is an intentional interaction-design decision, not an oversight.
package signing

import (
	"bytes"
	"context"
	"math"
	"sort"
	"time"

	"github.com/yuin/goldmark"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
	"github.com/wudi/signkit/validation"
)

// State is the coarse machine state. AllRequiredComplete is deliberately not
// a State: it is a derived condition (CanSubmit) that enables the submit
// action while the machine stays on whatever field the signer is viewing.
type State int

const (
	StateNotStarted State = iota
	StateFieldActive
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateFieldActive:
		return "field_active"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Submitter performs the external, atomic persistence call for a completed
// session. The server behind it is the source of truth for authorization.
type Submitter interface {
	Submit(ctx context.Context, documentID, signerEmail, token string, values map[string]string) error
}

// Config identifies the signer and document this session is for.
type Config struct {
	DocumentID  string
	SignerEmail string
	// Token is the signer-scoped access token from the signing link. The
	// session never interprets it; it is forwarded to the Submitter.
	Token string
	// DisclosureMarkdown, when set, is rendered to HTML for the signing
	// chrome. With RequireConsent the session refuses to start until the
	// signer accepts it.
	DisclosureMarkdown string
	RequireConsent     bool
}

// Session is one signer's ephemeral guided pass over a document. It derives
// entirely from the field model and owns no persisted state.
type Session struct {
	model     *fields.Model
	validator *validation.Engine
	submitter Submitter
	cfg       Config
	signer    fields.Signer

	seq       []string
	cursor    int
	state     State
	errs      map[string]string
	consented bool
	inFlight  bool

	log    observability.Logger
	tracer observability.Tracer
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithTracer sets the tracer used around submission.
func WithTracer(t observability.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// NewSession opens a guided session. The field subsequence is the fields
// assigned to this signer plus unassigned ones, in reading order across
// pages. A missing token, unknown signer, or already-signed signer is an
// AccessError: fatal, not retryable client-side.
func NewSession(model *fields.Model, v *validation.Engine, submitter Submitter, cfg Config, opts ...Option) (*Session, error) {
	if cfg.Token == "" {
		return nil, &AccessError{Reason: "missing access token"}
	}
	if cfg.SignerEmail == "" {
		return nil, &AccessError{Reason: "missing signer email"}
	}
	signer, ok := model.SignerByEmail(cfg.SignerEmail)
	if !ok {
		return nil, &AccessError{Reason: "unknown signer"}
	}
	if signer.Signed {
		return nil, &AccessError{Reason: "signer already completed this document"}
	}

	s := &Session{
		model:     model,
		validator: v,
		submitter: submitter,
		cfg:       cfg,
		signer:    signer,
		cursor:    -1,
		state:     StateNotStarted,
		errs:      make(map[string]string),
		log:       observability.NopLogger{},
		tracer:    observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buildSequence()
	return s, nil
}

func (s *Session) buildSequence() {
	all := s.model.Fields()
	var mine []fields.Field
	for _, f := range all {
		if f.AssignedTo == s.signer.ID || f.AssignedTo == "" {
			mine = append(mine, f)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].PageNumber != mine[j].PageNumber {
			return mine[i].PageNumber < mine[j].PageNumber
		}
		if mine[i].Y != mine[j].Y {
			return mine[i].Y < mine[j].Y
		}
		return mine[i].X < mine[j].X
	})
	s.seq = s.seq[:0]
	for _, f := range mine {
		s.seq = append(s.seq, f.ID)
	}
}

// Signer returns the signer this session belongs to.
func (s *Session) Signer() fields.Signer { return s.signer }

// State returns the machine state.
func (s *Session) State() State { return s.state }

// Fields returns the signer's field subsequence, in guided order.
func (s *Session) Fields() []fields.Field {
	out := make([]fields.Field, 0, len(s.seq))
	for _, id := range s.seq {
		if f, ok := s.model.Field(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// DisclosureHTML renders the configured markdown disclosure for display.
func (s *Session) DisclosureHTML() (string, error) {
	if s.cfg.DisclosureMarkdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s.cfg.DisclosureMarkdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Consent records that the signer accepted the disclosure.
func (s *Session) Consent() { s.consented = true }

// Start moves NotStarted -> FieldActive(0).
func (s *Session) Start() error {
	if s.state == StateSubmitted {
		return ErrAlreadySubmitted
	}
	if s.cfg.RequireConsent && !s.consented {
		return ErrConsentRequired
	}
	s.state = StateFieldActive
	if len(s.seq) > 0 {
		s.cursor = 0
	}
	s.log.Debug("signing session started",
		observability.String("signer", s.signer.ID),
		observability.Int("fields", len(s.seq)))
	return nil
}

// ActiveField returns the field under the cursor.
func (s *Session) ActiveField() (fields.Field, bool) {
	if s.state != StateFieldActive || s.cursor < 0 || s.cursor >= len(s.seq) {
		return fields.Field{}, false
	}
	return s.model.Field(s.seq[s.cursor])
}

// ActiveIndex returns the cursor position, or -1.
func (s *Session) ActiveIndex() int {
	if s.state != StateFieldActive {
		return -1
	}
	return s.cursor
}

// SetValue records a value for any field in the session and validates it
// live. If the field is the active one and now passes validation, the cursor
// advances to the next field.
func (s *Session) SetValue(fieldID, value string) error {
	if s.state == StateNotStarted {
		return ErrNotStarted
	}
	if s.state == StateSubmitted {
		return ErrAlreadySubmitted
	}
	idx := s.indexOf(fieldID)
	if idx < 0 {
		return ErrFieldNotInSession
	}
	if err := s.model.SetValue(fieldID, value); err != nil {
		return err
	}
	f, _ := s.model.Field(fieldID)
	if msg := s.validator.ValidateField(context.Background(), f); msg != "" {
		s.errs[fieldID] = msg
		return nil
	}
	delete(s.errs, fieldID)
	if idx == s.cursor && s.cursor < len(s.seq)-1 {
		s.cursor++
	}
	return nil
}

// Complete fills the active field. Convenience over SetValue.
func (s *Session) Complete(value string) error {
	f, ok := s.ActiveField()
	if !ok {
		return ErrNotStarted
	}
	return s.SetValue(f.ID, value)
}

// Jump moves the cursor to any field in the session. Navigation is never
// gated on prior fields being complete.
func (s *Session) Jump(fieldID string) error {
	if s.state == StateNotStarted {
		return ErrNotStarted
	}
	if s.state == StateSubmitted {
		return ErrAlreadySubmitted
	}
	idx := s.indexOf(fieldID)
	if idx < 0 {
		return ErrFieldNotInSession
	}
	s.cursor = idx
	return nil
}

// Next advances the cursor, stopping at the last field.
func (s *Session) Next() {
	if s.state == StateFieldActive && s.cursor < len(s.seq)-1 {
		s.cursor++
	}
}

// Prev moves the cursor back, stopping at the first field.
func (s *Session) Prev() {
	if s.state == StateFieldActive && s.cursor > 0 {
		s.cursor--
	}
}

// FieldError returns the live validation error for a field, if any.
func (s *Session) FieldError(fieldID string) string { return s.errs[fieldID] }

// Errors returns a copy of the current per-field validation errors.
func (s *Session) Errors() map[string]string {
	out := make(map[string]string, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// Progress is the required-field completion percentage, recomputed from the
// model on every call and never stored.
func (s *Session) Progress() int {
	total, complete := 0, 0
	for _, f := range s.Fields() {
		if !f.Required {
			continue
		}
		total++
		if s.validator.ValidateField(context.Background(), f) == "" {
			complete++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(complete) / float64(total)))
}

// CanSubmit reports whether the submit action is enabled: the session is
// live, no submission is in flight, and every required field validates.
func (s *Session) CanSubmit() bool {
	if s.state != StateFieldActive || s.inFlight {
		return false
	}
	return len(s.requiredErrors()) == 0
}

// Submit re-validates every required field, performs the external
// persistence call exactly once, and transitions to Submitted only on
// success. On failure the machine rolls back to its pre-submit state and the
// signer may retry. A second Submit while one is in flight is rejected.
func (s *Session) Submit(ctx context.Context) error {
	switch {
	case s.state == StateSubmitted:
		return ErrAlreadySubmitted
	case s.state == StateNotStarted:
		return ErrNotStarted
	case s.inFlight:
		return ErrSubmitInFlight
	}

	// Bulk re-validation defends against stale per-field state.
	if errs := s.requiredErrors(); len(errs) > 0 {
		s.errs = errs
		return &ValidationError{Fields: errs}
	}

	values := make(map[string]string, len(s.seq))
	for _, f := range s.Fields() {
		values[f.ID] = f.Value
	}

	s.inFlight = true
	defer func() { s.inFlight = false }()

	ctx, span := s.tracer.StartSpan(ctx, "signing.Submit")
	defer span.Finish()
	start := time.Now()
	err := s.submitter.Submit(ctx, s.cfg.DocumentID, s.cfg.SignerEmail, s.cfg.Token, values)
	if err != nil {
		span.SetError(err)
		s.log.Warn("submission failed",
			observability.String("document", s.cfg.DocumentID),
			observability.Error("err", err))
		return &SubmitError{Err: err}
	}

	s.state = StateSubmitted
	if err := s.model.MarkSigned(s.signer.ID, time.Now()); err != nil {
		// The external call succeeded; the session is submitted regardless.
		s.log.Error("mark signed failed", observability.Error("err", err))
	}
	s.log.Info("session submitted",
		observability.String("document", s.cfg.DocumentID),
		observability.String("signer", s.signer.ID),
		observability.Float64(observability.MetricSubmitTime, time.Since(start).Seconds()))
	return nil
}

func (s *Session) requiredErrors() map[string]string {
	errs := make(map[string]string)
	for _, f := range s.Fields() {
		if !f.Required {
			continue
		}
		if msg := s.validator.ValidateField(context.Background(), f); msg != "" {
			errs[f.ID] = msg
		}
	}
	return errs
}

func (s *Session) indexOf(fieldID string) int {
	for i, id := range s.seq {
		if id == fieldID {
			return i
		}
	}
	return -1
}
