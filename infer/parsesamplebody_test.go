package infer

import (
	"testing"

	"github.com/siegeai/siegeinfer/schema"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fastjson"
)

func parse(t *testing.T, cfg schema.Config, doc string) schema.Schema {
	t.Helper()
	s, err := ParseSampleBodyBytes(cfg, []byte(doc))
	assert.Nil(t, err)
	assert.NotNil(t, s)
	return s
}

func TestParseObjectEmpty(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), "{}")
	assert.Equal(t, "Record({})", s.String())
}

func TestParseObjectOneFieldString(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `{"field": "string-val"}`)
	assert.Equal(t, `Record({"field": Atomic(str)})`, s.String())
}

func TestParseObjectOneFieldNumber(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `{"field": 1234}`)
	assert.Equal(t, `Record({"field": Atomic(int)})`, s.String())
}

func TestParseObjectOneFieldBool(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `{"field": true}`)
	assert.Equal(t, `Record({"field": Atomic(bool)})`, s.String())
}

func TestParseObjectOneFieldNull(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `{"field": null}`)
	assert.Equal(t, `Record({"field": Atomic(null)})`, s.String())
}

func TestParseNumbers(t *testing.T) {
	cfg := schema.DefaultConfig()
	assert.Equal(t, "Atomic(int)", parse(t, cfg, "-12").String())
	assert.Equal(t, "Atomic(int)", parse(t, cfg, "18446744073709551615").String())
	assert.Equal(t, "Atomic(float)", parse(t, cfg, "1.0").String())
	assert.Equal(t, "Atomic(float)", parse(t, cfg, "1e3").String())
	assert.Equal(t, "Atomic(int)", parse(t, cfg, "123456789012345678901234567890").String())
	assert.Equal(t, "Atomic(float)", parse(t, cfg, "-0.5E-7").String())
}

func TestParseArrayEmpty(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), "[]")
	assert.Equal(t, "Array(Unknown())", s.String())
}

func TestParseArrayNullable(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), "[1, null]")
	assert.Equal(t, "Array(Optional(Atomic(int)))", s.String())

	s = parse(t, schema.DefaultConfig(), "[1, 1.2, null]")
	assert.Equal(t, "Array(Optional(Union({Atomic(float), Atomic(int)})))", s.String())
}

func TestParseArrayCompositeHomogeneous(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `[{"a": 123}, {"b": "hi"}]`)
	assert.Equal(t, `Array(DynamicRecord({"a": Atomic(int), "b": Atomic(str)}, {"a": 1, "b": 1}))`, s.String())

	s = parse(t, schema.Config{Mode: schema.ModeLabel}, `[{"a": 123}, {"b": "hi"}]`)
	assert.Equal(t, `Array(Union({Record({"a": Atomic(int)}), Record({"b": Atomic(str)})}))`, s.String())
}

func TestParseArrayCompositeHeterogeneous(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `[{"a": 123}, null]`)
	assert.Equal(t, `Array(Optional(Record({"a": Atomic(int)})))`, s.String())
}

func TestParseUniformRecord(t *testing.T) {
	doc := `{"1": {"a": 5, "b": 6}, "2": {"a": 34, "b": null}}`

	s := parse(t, schema.DefaultConfig(), doc)
	assert.Equal(t, `UniformRecord(Record({"a": Atomic(int), "b": Optional(Atomic(int))}))`, s.String())

	s = parse(t, schema.Config{UnifyRecords: false}, doc)
	assert.Equal(t, schema.KindRecord, s.Kind())

	s = parse(t, schema.DefaultConfig(), `{"1": 1, "2": 2}`)
	assert.Equal(t, `Record({"1": Atomic(int), "2": Atomic(int)})`, s.String())
}

func TestParseDuplicateKeys(t *testing.T) {
	s := parse(t, schema.DefaultConfig(), `{"a": 1, "a": "x"}`)
	assert.Equal(t, `Record({"a": Union({Atomic(int), Atomic(str)})})`, s.String())
}

func TestParseInvalid(t *testing.T) {
	_, err := ParseSampleBodyBytes(schema.DefaultConfig(), []byte(`{"a": `))
	assert.NotNil(t, err)
}

func TestParseWithReusedParser(t *testing.T) {
	var p fastjson.Parser
	cfg := schema.DefaultConfig()

	var got []schema.Schema
	for _, doc := range []string{`{"a": 1, "b": 1}`, `{"a": 2, "b": 2}`, `{"a": 1}`} {
		v, err := p.Parse(doc)
		assert.Nil(t, err)
		s, err := ParseSampleBodyFastJson(cfg, v)
		assert.Nil(t, err)
		got = append(got, s)
	}

	d, ok := schema.Reduce(got...).(*schema.DynamicRecord)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 3, "b": 2}, d.KeyCounts())
	assert.Equal(t, `DynamicRecord({"a": Atomic(int), "b": Atomic(int)}, {"a": 3, "b": 2})`, d.String())
}
