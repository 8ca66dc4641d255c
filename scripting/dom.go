package scripting

import (
	"fmt"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
)

// ModelDOM adapts a fields.Model to the DocumentModel interface. Progress is
// supplied by the caller so the adapter works for both authoring previews
// and live signing sessions.
type ModelDOM struct {
	model    *fields.Model
	progress func() int
	log      observability.Logger
}

func NewModelDOM(m *fields.Model, progress func() int, log observability.Logger) *ModelDOM {
	if progress == nil {
		progress = func() int { return 0 }
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &ModelDOM{model: m, progress: progress, log: log}
}

func (d *ModelDOM) GetField(id string) (FieldProxy, error) {
	if _, ok := d.model.Field(id); !ok {
		return nil, fmt.Errorf("scripting: field not found: %s", id)
	}
	return &modelFieldProxy{model: d.model, id: id}, nil
}

func (d *ModelDOM) Progress() int { return d.progress() }

func (d *ModelDOM) Alert(message string) {
	d.log.Info("script alert", observability.String("message", message))
}

type modelFieldProxy struct {
	model *fields.Model
	id    string
}

func (p *modelFieldProxy) GetValue() interface{} {
	f, ok := p.model.Field(p.id)
	if !ok {
		return nil
	}
	if f.Type == fields.TypeCheckbox {
		return f.Value == fields.CheckedValue
	}
	return f.Value
}

func (p *modelFieldProxy) SetValue(val interface{}) {
	switch v := val.(type) {
	case string:
		_ = p.model.SetValue(p.id, v)
	case bool:
		if v {
			_ = p.model.SetValue(p.id, fields.CheckedValue)
		} else {
			_ = p.model.SetValue(p.id, "")
		}
	}
}
