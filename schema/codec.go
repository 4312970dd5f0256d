package schema

import (
	"fmt"

	"github.com/goccy/go-json"
)

// wireSchema is the persisted form of a Schema. Exactly the fields belonging to Kind
// are set.
type wireSchema struct {
	Kind    string                 `json:"kind"`
	Type    string                 `json:"type,omitempty"`
	Items   *wireSchema            `json:"items,omitempty"`
	Fields  map[string]*wireSchema `json:"fields,omitempty"`
	Seen    int                    `json:"seen,omitempty"`
	Counts  map[string]int         `json:"counts,omitempty"`
	Values  *wireSchema            `json:"values,omitempty"`
	Members []*wireSchema          `json:"members,omitempty"`
	Value   *wireSchema            `json:"value,omitempty"`
}

// Marshal encodes s, annotations included, so that Unmarshal gives back a schema
// Identical to s.
func Marshal(s Schema) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: cannot encode a nil schema", ErrInvalidSchemaContent)
	}
	return json.Marshal(toWire(s))
}

func Unmarshal(b []byte) (Schema, error) {
	var w wireSchema
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}

// Unmarshal decodes b and checks it against c, so that a union c would merge, such
// as two records in kind mode, is rejected instead of silently collapsing later.
func (c Config) Unmarshal(b []byte) (Schema, error) {
	s, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Encoded wraps a Schema so it can be embedded in other JSON documents.
type Encoded struct {
	Schema Schema
}

func (e Encoded) MarshalJSON() ([]byte, error) {
	if e.Schema == nil {
		return []byte("null"), nil
	}
	return Marshal(e.Schema)
}

func (e *Encoded) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		e.Schema = nil
		return nil
	}
	s, err := Unmarshal(b)
	if err != nil {
		return err
	}
	e.Schema = s
	return nil
}

func toWire(s Schema) *wireSchema {
	w := &wireSchema{Kind: s.Kind().String()}
	switch x := s.(type) {
	case *Unknown:
	case *Atomic:
		w.Type = x.p.String()
	case *Array:
		w.Items = toWire(x.elem)
	case *UniformRecord:
		w.Values = toWire(x.value)
	case *Optional:
		w.Value = toWire(x.value)
	case *Record:
		w.Fields = toWireFields(x.fields)
		w.Seen = x.seen
	case *DynamicRecord:
		w.Fields = toWireFields(x.fields)
		w.Counts = x.counts
	case *Union:
		w.Members = make([]*wireSchema, len(x.members))
		for i, m := range x.members {
			w.Members[i] = toWire(m)
		}
	default:
		panic("should be unreachable")
	}
	return w
}

func toWireFields(fields map[string]Schema) map[string]*wireSchema {
	res := make(map[string]*wireSchema, len(fields))
	for k, v := range fields {
		res[k] = toWire(v)
	}
	return res
}

func fromWire(w *wireSchema) (Schema, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: missing schema", ErrInvalidSchemaContent)
	}

	switch w.Kind {
	case KindUnknown.String():
		return unknown, nil
	case KindAtomic.String():
		p, err := ParsePrimitive(w.Type)
		if err != nil {
			return nil, err
		}
		return NewAtomic(p)
	case KindArray.String():
		elem, err := fromWire(w.Items)
		if err != nil {
			return nil, err
		}
		return NewArray(elem)
	case KindUniformRecord.String():
		v, err := fromWire(w.Values)
		if err != nil {
			return nil, err
		}
		return NewUniformRecord(v)
	case KindOptional.String():
		v, err := fromWire(w.Value)
		if err != nil {
			return nil, err
		}
		return NewOptional(v)
	case KindRecord.String():
		fields, err := fromWireFields(w.Fields)
		if err != nil {
			return nil, err
		}
		r, err := NewRecord(fields)
		if err != nil {
			return nil, err
		}
		if w.Seen < 0 {
			return nil, fmt.Errorf("%w: record weight is negative", ErrInvalidSchemaContent)
		}
		if w.Seen > 0 {
			r.seen = w.Seen
		}
		return r, nil
	case KindDynamicRecord.String():
		fields, err := fromWireFields(w.Fields)
		if err != nil {
			return nil, err
		}
		return NewDynamicRecord(fields, w.Counts)
	case KindUnion.String():
		ms := make([]Schema, len(w.Members))
		for i, m := range w.Members {
			s, err := fromWire(m)
			if err != nil {
				return nil, err
			}
			ms[i] = s
		}
		return NewUnion(ms...)
	}

	return nil, fmt.Errorf("%w: unknown schema kind %q", ErrInvalidSchemaContent, w.Kind)
}

func fromWireFields(fields map[string]*wireSchema) (map[string]Schema, error) {
	res := make(map[string]Schema, len(fields))
	for k, v := range fields {
		s, err := fromWire(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		res[k] = s
	}
	return res, nil
}
