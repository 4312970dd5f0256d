package schema

import (
	"fmt"
	"maps"
	"slices"
)

type Kind int

const (
	KindUnknown       Kind = 0
	KindAtomic        Kind = 1
	KindArray         Kind = 2
	KindRecord        Kind = 3
	KindDynamicRecord Kind = 4
	KindUniformRecord Kind = 5
	KindUnion         Kind = 6
	KindOptional      Kind = 7
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindAtomic:        "atomic",
	KindArray:         "array",
	KindRecord:        "record",
	KindDynamicRecord: "dynamic_record",
	KindUniformRecord: "uniform_record",
	KindUnion:         "union",
	KindOptional:      "optional",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Schema is one of *Atomic, *Array, *Record, *DynamicRecord, *UniformRecord, *Union,
// *Optional or *Unknown. Values are immutable once constructed and may be shared
// between goroutines.
type Schema interface {
	Kind() Kind
	String() string
	schema()
}

type Primitive int

const (
	Null   Primitive = 0
	Bool   Primitive = 1
	Int    Primitive = 2
	Float  Primitive = 3
	String Primitive = 4
)

var primitiveNames = [...]string{
	Null:   "null",
	Bool:   "bool",
	Int:    "int",
	Float:  "float",
	String: "str",
}

func (p Primitive) String() string {
	if !p.valid() {
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
	return primitiveNames[p]
}

func (p Primitive) valid() bool {
	return p >= Null && int(p) < len(primitiveNames)
}

func ParsePrimitive(name string) (Primitive, error) {
	for i, n := range primitiveNames {
		if n == name {
			return Primitive(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown primitive type %q", ErrInvalidSchemaContent, name)
}

type Atomic struct {
	p Primitive
}

type Array struct {
	elem Schema
}

// Record is a keyed structure whose contributing documents all had exactly the same
// keys. seen counts those documents; it is not part of the record's shape.
type Record struct {
	fields map[string]Schema
	seen   int
}

type DynamicRecord struct {
	fields map[string]Schema
	counts map[string]int
}

type UniformRecord struct {
	value Schema
}

// Union holds at least two members, none of which is a Union, an Optional, Unknown or
// Atomic(null). Members are kept in a deterministic order.
type Union struct {
	members []Schema
}

type Optional struct {
	value Schema
}

type Unknown struct{}

var unknown = &Unknown{}

var atomics = [...]*Atomic{
	Null:   {p: Null},
	Bool:   {p: Bool},
	Int:    {p: Int},
	Float:  {p: Float},
	String: {p: String},
}

func NewUnknown() *Unknown {
	return unknown
}

func NewAtomic(p Primitive) (*Atomic, error) {
	if !p.valid() {
		return nil, fmt.Errorf("%w: atomic content must be a primitive type or null, got %d", ErrInvalidSchemaContent, int(p))
	}
	return atomics[p], nil
}

func NewArray(elem Schema) (*Array, error) {
	if isNil(elem) {
		return nil, fmt.Errorf("%w: array content must be a schema", ErrInvalidSchemaContent)
	}
	return &Array{elem: elem}, nil
}

func NewRecord(fields map[string]Schema) (*Record, error) {
	if err := checkFields("record", fields); err != nil {
		return nil, err
	}
	return &Record{fields: cloneFields(fields), seen: 1}, nil
}

func NewDynamicRecord(fields map[string]Schema, counts map[string]int) (*DynamicRecord, error) {
	if err := checkFields("dynamic record", fields); err != nil {
		return nil, err
	}
	if len(counts) != len(fields) {
		return nil, fmt.Errorf("%w: dynamic record has %d fields but %d key counts", ErrInvalidSchemaContent, len(fields), len(counts))
	}
	for k, n := range counts {
		if _, ok := fields[k]; !ok {
			return nil, fmt.Errorf("%w: dynamic record counts key %q which is not a field", ErrInvalidSchemaContent, k)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: dynamic record count for %q is negative", ErrInvalidSchemaContent, k)
		}
	}
	return &DynamicRecord{fields: cloneFields(fields), counts: maps.Clone(counts)}, nil
}

func NewUniformRecord(value Schema) (*UniformRecord, error) {
	if isNil(value) {
		return nil, fmt.Errorf("%w: uniform record content must be a schema", ErrInvalidSchemaContent)
	}
	return &UniformRecord{value: value}, nil
}

func NewOptional(value Schema) (*Optional, error) {
	if isNil(value) {
		return nil, fmt.Errorf("%w: optional content must be a schema", ErrInvalidSchemaContent)
	}
	switch value.Kind() {
	case KindOptional, KindUnknown:
		return nil, fmt.Errorf("%w: optional cannot wrap %s", ErrInvalidSchemaContent, value.Kind())
	}
	if isNull(value) {
		return nil, fmt.Errorf("%w: optional cannot wrap null", ErrInvalidSchemaContent)
	}
	return &Optional{value: value}, nil
}

// NewUnion flattens nested unions and drops structurally equal duplicates. It fails
// unless at least two distinct members remain, or when two members could be merged in
// any mode. Records with different key sets are accepted; whether they may share a
// union depends on the mode, see Config.NewUnion.
func NewUnion(members ...Schema) (*Union, error) {
	return Config{Mode: ModeLabel}.NewUnion(members...)
}

// NewUnion is like the package level NewUnion but also rejects members that c would
// merge into one, e.g. two records in kind mode.
func (c Config) NewUnion(members ...Schema) (*Union, error) {
	flat := make([]Schema, 0, len(members))
	for _, m := range members {
		if isNil(m) {
			return nil, fmt.Errorf("%w: union member must be a schema", ErrInvalidSchemaContent)
		}
		if u, ok := m.(*Union); ok {
			flat = append(flat, u.members...)
			continue
		}
		switch m.Kind() {
		case KindOptional, KindUnknown:
			return nil, fmt.Errorf("%w: union member cannot be %s", ErrInvalidSchemaContent, m.Kind())
		}
		if isNull(m) {
			return nil, fmt.Errorf("%w: union member cannot be null, use an optional", ErrInvalidSchemaContent)
		}
		flat = append(flat, m)
	}

	distinct := make([]Schema, 0, len(flat))
	for _, m := range flat {
		if !slices.ContainsFunc(distinct, func(d Schema) bool { return Equal(d, m) }) {
			distinct = append(distinct, m)
		}
	}
	if len(distinct) < 2 {
		return nil, fmt.Errorf("%w: union needs at least two distinct members, got %d", ErrInvalidSchemaContent, len(distinct))
	}
	if err := c.checkSlots(distinct); err != nil {
		return nil, err
	}

	sortMembers(distinct)
	return &Union{members: distinct}, nil
}

// Must panics if err is non-nil. It is meant for schema literals.
func Must[T Schema](s T, err error) T {
	if err != nil {
		panic(err)
	}
	return s
}

func checkFields(what string, fields map[string]Schema) error {
	for k, v := range fields {
		if isNil(v) {
			return fmt.Errorf("%w: %s value for key %q must be a schema", ErrInvalidSchemaContent, what, k)
		}
	}
	return nil
}

func cloneFields(fields map[string]Schema) map[string]Schema {
	if fields == nil {
		return map[string]Schema{}
	}
	return maps.Clone(fields)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// isNil reports a missing schema, including typed nil pointers.
func isNil(s Schema) bool {
	switch x := s.(type) {
	case nil:
		return true
	case *Atomic:
		return x == nil
	case *Array:
		return x == nil
	case *Record:
		return x == nil
	case *DynamicRecord:
		return x == nil
	case *UniformRecord:
		return x == nil
	case *Union:
		return x == nil
	case *Optional:
		return x == nil
	case *Unknown:
		return x == nil
	}
	return false
}

func isNull(s Schema) bool {
	a, ok := s.(*Atomic)
	return ok && a.p == Null
}

func (*Atomic) Kind() Kind        { return KindAtomic }
func (*Array) Kind() Kind         { return KindArray }
func (*Record) Kind() Kind        { return KindRecord }
func (*DynamicRecord) Kind() Kind { return KindDynamicRecord }
func (*UniformRecord) Kind() Kind { return KindUniformRecord }
func (*Union) Kind() Kind         { return KindUnion }
func (*Optional) Kind() Kind      { return KindOptional }
func (*Unknown) Kind() Kind       { return KindUnknown }

func (*Atomic) schema()        {}
func (*Array) schema()         {}
func (*Record) schema()        {}
func (*DynamicRecord) schema() {}
func (*UniformRecord) schema() {}
func (*Union) schema()         {}
func (*Optional) schema()      {}
func (*Unknown) schema()       {}

func (a *Atomic) Primitive() Primitive { return a.p }

func (a *Atomic) IsNull() bool { return a.p == Null }

func (a *Array) Element() Schema { return a.elem }

func (r *Record) Len() int { return len(r.fields) }

func (r *Record) Keys() []string { return sortedKeys(r.fields) }

func (r *Record) Field(key string) (Schema, bool) {
	s, ok := r.fields[key]
	return s, ok
}

// Fields returns a copy of the record's fields.
func (r *Record) Fields() map[string]Schema { return maps.Clone(r.fields) }

// Seen is the number of source records merged into r.
func (r *Record) Seen() int { return r.seen }

func (d *DynamicRecord) Len() int { return len(d.fields) }

func (d *DynamicRecord) Keys() []string { return sortedKeys(d.fields) }

func (d *DynamicRecord) Field(key string) (Schema, bool) {
	s, ok := d.fields[key]
	return s, ok
}

func (d *DynamicRecord) Fields() map[string]Schema { return maps.Clone(d.fields) }

// Count is the number of contributing records that had key present.
func (d *DynamicRecord) Count(key string) int { return d.counts[key] }

func (d *DynamicRecord) KeyCounts() map[string]int { return maps.Clone(d.counts) }

func (u *UniformRecord) Value() Schema { return u.value }

func (u *Union) Len() int { return len(u.members) }

func (u *Union) Members() []Schema { return slices.Clone(u.members) }

func (o *Optional) Value() Schema { return o.value }
