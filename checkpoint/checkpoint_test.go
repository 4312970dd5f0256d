package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/siegeai/siegeinfer/pipeline"
	"github.com/siegeai/siegeinfer/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	x := NewIndex()
	assert.False(t, x.Contains("a"))

	x.Add("a")
	x.Add("a")
	x.Add("b")
	assert.True(t, x.Contains("a"))
	assert.True(t, x.Contains("b"))
	assert.False(t, x.Contains("c"))
	assert.Equal(t, 2, x.Len())

	bs, err := json.Marshal(x)
	require.Nil(t, err)

	y := NewIndex()
	require.Nil(t, json.Unmarshal(bs, y))
	assert.True(t, y.Contains("a"))
	assert.True(t, y.Contains("b"))
	assert.Equal(t, 2, y.Len())
}

func TestIndexConcurrent(t *testing.T) {
	x := NewIndex()
	wg := &sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("%d-%d", i, j)
				x.Add(id)
				assert.True(t, x.Contains(id))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, x.Len())
}

func TestLoadMissing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.json"), schema.DefaultConfig())
	require.Nil(t, err)
	assert.Equal(t, schema.KindUnknown, s.Schema.Kind())
	assert.Equal(t, 0, s.Processed.Len())
	assert.Equal(t, schema.DefaultConfig(), s.Config)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := schema.Config{UnifyRecords: false, Mode: schema.ModeLabel}

	s := NewState(cfg)
	s.Schema = schema.Reduce(
		schema.Must(schema.NewRecord(map[string]schema.Schema{"a": schema.Must(schema.NewAtomic(schema.Int))})),
		schema.Must(schema.NewRecord(map[string]schema.Schema{"b": schema.Must(schema.NewAtomic(schema.Int))})),
	)
	s.Processed.Add("doc-1")
	s.Documents = 2
	require.Nil(t, s.Save(path))

	got, err := Load(path, cfg)
	require.Nil(t, err)
	assert.Equal(t, s.RunID, got.RunID)
	assert.Equal(t, 2, got.Documents)
	assert.True(t, got.Processed.Contains("doc-1"))
	assert.True(t, schema.Identical(s.Schema, got.Schema))
	assert.False(t, got.UpdatedAt.IsZero())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.Nil(t, err)
	assert.Len(t, entries, 1)

	_, err = Load(path, schema.DefaultConfig())
	assert.ErrorIs(t, err, ErrConfigMismatch)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.Nil(t, os.WriteFile(path, []byte(`{"schema": {"kind": "tuple"}}`), 0o644))

	_, err := Load(path, schema.DefaultConfig())
	assert.NotNil(t, err)
}

func TestResumeSkipsProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := schema.DefaultConfig()

	docs := func(lines ...string) <-chan pipeline.Doc {
		res := make([]pipeline.Doc, len(lines))
		for i, l := range lines {
			res[i] = pipeline.Doc{ID: fmt.Sprint(i), JSON: []byte(l)}
		}
		return pipeline.FromSlice(res)
	}
	all := []string{`{"a": 1, "b": 1}`, `{"a": 2, "b": 2}`, `{"a": 1}`}

	// first run only gets through the first two documents
	s, err := Load(path, cfg)
	require.Nil(t, err)
	res, err := pipeline.Run(context.Background(), pipeline.Options{Config: cfg, Index: s.Processed, Initial: s.Schema}, docs(all[:2]...))
	require.Nil(t, err)
	s.Schema = res.Schema
	s.Documents += res.Fitted
	require.Nil(t, s.Save(path))

	// second run sees everything again
	s, err = Load(path, cfg)
	require.Nil(t, err)
	res, err = pipeline.Run(context.Background(), pipeline.Options{Config: cfg, Index: s.Processed, Initial: s.Schema}, docs(all...))
	require.Nil(t, err)
	assert.Equal(t, 1, res.Fitted)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, `DynamicRecord({"a": Atomic(int), "b": Atomic(int)}, {"a": 3, "b": 2})`, res.Schema.String())
}

func TestLoadRejectsUnionForMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{
		"config": {"unifyRecords": true, "equivalenceMode": "kind"},
		"schema": {"kind": "union", "members": [
			{"kind": "record", "fields": {"a": {"kind": "atomic", "type": "int"}}},
			{"kind": "record", "fields": {"b": {"kind": "atomic", "type": "int"}}}
		]}
	}`
	require.Nil(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path, schema.DefaultConfig())
	assert.ErrorIs(t, err, schema.ErrInvalidSchemaContent)
}
