package persist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/fields"
)

func coordsPoint(x, y float64) coords.Point { return coords.Point{X: x, Y: y} }

func TestDocumentRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		json.NewEncoder(w).Encode(DocumentPayload{
			Fields:  []fields.Field{{ID: "f1", Type: fields.TypeText, PageNumber: 1, Width: 60, Height: 24}},
			Signers: []fields.Signer{{ID: "s1", Email: "jane@example.com"}},
			Status:  StatusDraft,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	doc, err := c.Document(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.Status)
	require.Len(t, doc.Fields, 1)
	assert.Equal(t, "f1", doc.Fields[0].ID)
}

func TestPutAndSendEndpoints(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.PutFields(ctx, "d", nil))
	require.NoError(t, c.PutSigners(ctx, "d", nil))
	require.NoError(t, c.PutStatus(ctx, "d", StatusSent))
	require.NoError(t, c.Send(ctx, "d", []fields.Signer{{ID: "s1", Email: "a@b.c"}}))

	want := []call{
		{"PUT", "/documents/d/fields"},
		{"PUT", "/documents/d/signers"},
		{"PUT", "/documents/d/status"},
		{"POST", "/documents/d/send"},
	}
	assert.Equal(t, want, calls)
}

func TestSubmitCarriesTokenAndValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sign/doc-9/submit", r.URL.Path)
		assert.Equal(t, "tok&1", r.URL.Query().Get("access_token"))
		var body struct {
			SignerEmail string            `json:"signerEmail"`
			FieldValues map[string]string `json:"fieldValues"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "jane@example.com", body.SignerEmail)
		assert.Equal(t, "Jane", body.FieldValues["f1"])
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	err = c.Submit(context.Background(), "doc-9", "jane@example.com", "tok&1", map[string]string{"f1": "Jane"})
	require.NoError(t, err)
}

func TestSubmitAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	err = c.Submit(context.Background(), "d", "e@x.y", "bad", nil)
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
}

func TestSaveErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	err = c.PutFields(context.Background(), "d", nil)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, http.StatusInternalServerError, saveErr.StatusCode)
}

func TestAutosaveDebounces(t *testing.T) {
	var saves atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/documents/d/fields" {
			saves.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	m := fields.NewModel(map[int]fields.PageBounds{1: {Width: 600, Height: 800}})
	a := NewAutosaver(c, "d", m, WithDelay(50*time.Millisecond))
	defer a.Close()

	// A burst of edits collapses into one save.
	for i := 0; i < 5; i++ {
		_, err := m.Create(fields.TypeText, 1, coordsPoint(float64(50*i), 100))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return saves.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), saves.Load())
}

func TestAutosaveFailureSurfacesNotice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	m := fields.NewModel(map[int]fields.PageBounds{1: {Width: 600, Height: 800}})

	var mu sync.Mutex
	var notices []error
	a := NewAutosaver(c, "d", m, WithDelay(20*time.Millisecond), WithNotice(func(err error) {
		mu.Lock()
		notices = append(notices, err)
		mu.Unlock()
	}))
	defer a.Close()

	_, err = m.Create(fields.TypeText, 1, coordsPoint(10, 10))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A failed autosave never blocks further edits.
	_, err = m.Create(fields.TypeText, 1, coordsPoint(30, 30))
	require.NoError(t, err)

	// An explicit flush retries synchronously and reports the failure.
	require.Error(t, a.Flush(context.Background()))
}

func TestFlushSavesSynchronously(t *testing.T) {
	var saves atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		saves.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	m := fields.NewModel(map[int]fields.PageBounds{1: {Width: 600, Height: 800}})
	a := NewAutosaver(c, "d", m, WithDelay(time.Hour))
	defer a.Close()

	_, err = m.Create(fields.TypeText, 1, coordsPoint(10, 10))
	require.NoError(t, err)
	require.NoError(t, a.Flush(context.Background()))
	// PutFields + PutSigners, no debounced save later.
	assert.Equal(t, int32(2), saves.Load())
}
