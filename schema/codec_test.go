package schema

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestMarshalRoundTrip(t *testing.T) {
	counted := Reduce(
		rec(map[string]Schema{"a": tInt, "b": tStr}),
		rec(map[string]Schema{"a": tInt, "b": tStr}),
		rec(map[string]Schema{"a": tFloat}),
	)
	weighted := Merge(rec(map[string]Schema{"x": tBool}), rec(map[string]Schema{"x": tBool}))

	for _, s := range append(samples(), counted, weighted) {
		b, err := Marshal(s)
		assert.Nil(t, err)

		got, err := Unmarshal(b)
		assert.Nil(t, err)
		assert.True(t, Identical(s, got), "want %s, got %s", s, got)
	}
}

func TestMarshalShape(t *testing.T) {
	b, err := Marshal(opt(arr(tInt)))
	assert.Nil(t, err)
	assert.JSONEq(t, `{"kind":"optional","value":{"kind":"array","items":{"kind":"atomic","type":"int"}}}`, string(b))

	b, err = Marshal(dyn(map[string]Schema{"a": tStr}, map[string]int{"a": 2}))
	assert.Nil(t, err)
	assert.JSONEq(t, `{"kind":"dynamic_record","fields":{"a":{"kind":"atomic","type":"str"}},"counts":{"a":2}}`, string(b))
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	for _, doc := range []string{
		`{"kind":"tuple"}`,
		`{"kind":"atomic","type":"decimal"}`,
		`{"kind":"array"}`,
		`{"kind":"optional","value":{"kind":"atomic","type":"null"}}`,
		`{"kind":"union","members":[{"kind":"atomic","type":"int"}]}`,
		`{"kind":"record","fields":{"a":{"kind":"nope"}}}`,
		`{"kind":"record","fields":{},"seen":-1}`,
		`{"kind":"dynamic_record","fields":{"a":{"kind":"atomic","type":"int"}},"counts":{}}`,
	} {
		_, err := Unmarshal([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidSchemaContent, doc)
	}

	_, err := Unmarshal([]byte(`{`))
	assert.NotNil(t, err)

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrInvalidSchemaContent)
}

func TestConfigUnmarshal(t *testing.T) {
	b, err := Marshal(union(rec(map[string]Schema{"a": tInt}), rec(map[string]Schema{"b": tInt})))
	assert.Nil(t, err)

	_, err = DefaultConfig().Unmarshal(b)
	assert.ErrorIs(t, err, ErrInvalidSchemaContent)

	s, err := Config{Mode: ModeLabel}.Unmarshal(b)
	assert.Nil(t, err)
	assert.Equal(t, KindUnion, s.Kind())

	_, err = DefaultConfig().Unmarshal([]byte(`{"kind":"tuple"}`))
	assert.ErrorIs(t, err, ErrInvalidSchemaContent)
}

func TestEncoded(t *testing.T) {
	type envelope struct {
		Name   string  `json:"name"`
		Schema Encoded `json:"schema"`
	}

	in := envelope{Name: "users", Schema: Encoded{Schema: union(tInt, tStr)}}
	b, err := json.Marshal(in)
	assert.Nil(t, err)

	var out envelope
	assert.Nil(t, json.Unmarshal(b, &out))
	assert.Equal(t, "users", out.Name)
	assertSchema(t, in.Schema.Schema, out.Schema.Schema)

	b, err = json.Marshal(envelope{Name: "empty"})
	assert.Nil(t, err)
	assert.Contains(t, string(b), `"schema":null`)

	var empty envelope
	assert.Nil(t, json.Unmarshal(b, &empty))
	assert.Nil(t, empty.Schema.Schema)
}
