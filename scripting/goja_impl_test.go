package scripting

import (
	"context"
	"testing"
	"time"

	"github.com/wudi/signkit/coords"
	"github.com/wudi/signkit/fields"
)

func TestExecuteReturnsValue(t *testing.T) {
	e := NewEngine()
	v, err := e.Execute(context.Background(), `1 + 2`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if n, ok := v.(int64); !ok || n != 3 {
		t.Fatalf("got %v (%T), want 3", v, v)
	}
}

func TestExecuteInterruptedByContext(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, `while (true) {}`)
	if err == nil {
		t.Fatal("expected interruption error")
	}
}

func TestBind(t *testing.T) {
	e := NewEngine()
	if err := e.Bind("value", "jane"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	v, err := e.Execute(context.Background(), `value === "jane"`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v != true {
		t.Fatalf("got %v, want true", v)
	}
}

func TestRegisterDOMFieldAccess(t *testing.T) {
	m := fields.NewModel(map[int]fields.PageBounds{1: {Width: 600, Height: 800}},
		fields.WithIDGenerator(func() string { return "f1" }))
	f, err := m.Create(fields.TypeText, 1, coords.Point{X: 100, Y: 100})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetValue(f.ID, "hello"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	e := NewEngine()
	if err := e.RegisterDOM(NewModelDOM(m, func() int { return 40 }, nil)); err != nil {
		t.Fatalf("RegisterDOM failed: %v", err)
	}

	v, err := e.Execute(context.Background(), `getField("f1").value`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %v, want hello", v)
	}

	if _, err := e.Execute(context.Background(), `getField("f1").value = "bye"`); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got, _ := m.Field("f1")
	if got.Value != "bye" {
		t.Fatalf("model value = %q, want bye", got.Value)
	}

	v, err = e.Execute(context.Background(), `progress()`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if n, ok := v.(int64); !ok || n != 40 {
		t.Fatalf("progress() = %v, want 40", v)
	}
}
