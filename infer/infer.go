package infer

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/siegeai/siegeinfer/schema"
)

// numberLike matches json.Number from encoding/json and goccy/go-json.
type numberLike interface {
	Int64() (int64, error)
	String() string
}

// Fit returns the schema of a decoded value: nil, booleans, numbers, strings,
// string-keyed maps and slices, nested arbitrarily.
func Fit(cfg schema.Config, v any) (schema.Schema, error) {
	switch x := v.(type) {
	case nil:
		return atomic(schema.Null), nil
	case bool:
		return atomic(schema.Bool), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return atomic(schema.Int), nil
	case float32, float64:
		return atomic(schema.Float), nil
	case string:
		return atomic(schema.String), nil
	case numberLike:
		return fitNumber(x), nil
	case map[string]any:
		fields := make(map[string]schema.Schema, len(x))
		for k, e := range x {
			s, err := Fit(cfg, e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = s
		}
		return fitRecord(cfg, fields)
	case map[any]any:
		fields := make(map[string]schema.Schema, len(x))
		for k, e := range x {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: record key %v is %T, not a string", schema.ErrInvalidSchemaContent, k, k)
			}
			s, err := Fit(cfg, e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			fields[key] = s
		}
		return fitRecord(cfg, fields)
	case []any:
		elems := make([]schema.Schema, len(x))
		for i, e := range x {
			s, err := Fit(cfg, e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = s
		}
		return fitArray(cfg, elems)
	}

	return fitReflect(cfg, reflect.ValueOf(v))
}

// fitReflect handles typed containers such as []string or map[string]int.
func fitReflect(cfg schema.Config, rv reflect.Value) (schema.Schema, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return atomic(schema.Null), nil
		}
		return Fit(cfg, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return atomic(schema.Null), nil
		}
		elems := make([]schema.Schema, rv.Len())
		for i := range elems {
			s, err := Fit(cfg, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = s
		}
		return fitArray(cfg, elems)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: record keys must be strings, got %s", schema.ErrInvalidSchemaContent, rv.Type().Key())
		}
		fields := make(map[string]schema.Schema, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			s, err := Fit(cfg, iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			fields[key] = s
		}
		return fitRecord(cfg, fields)
	case reflect.Bool:
		return atomic(schema.Bool), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return atomic(schema.Int), nil
	case reflect.Float32, reflect.Float64:
		return atomic(schema.Float), nil
	case reflect.String:
		return atomic(schema.String), nil
	}

	return nil, fmt.Errorf("%w: cannot fit value of type %T", schema.ErrInvalidSchemaContent, rv.Interface())
}

func fitNumber(n numberLike) schema.Schema {
	if _, err := n.Int64(); err == nil {
		return atomic(schema.Int)
	}
	if strings.ContainsAny(n.String(), ".eE") {
		return atomic(schema.Float)
	}
	// integer syntax outside the int64 range
	return atomic(schema.Int)
}

// fitRecord builds the record for an object's fields and, when records are unified,
// collapses it into a UniformRecord if its values reduce to one record or array shape.
func fitRecord(cfg schema.Config, fields map[string]schema.Schema) (schema.Schema, error) {
	r, err := schema.NewRecord(fields)
	if err != nil {
		return nil, err
	}
	if !cfg.UnifyRecords || len(fields) == 0 {
		return r, nil
	}

	values := make([]schema.Schema, 0, len(fields))
	for _, k := range r.Keys() {
		values = append(values, fields[k])
	}
	switch reduced := cfg.Reduce(values...); reduced.Kind() {
	case schema.KindRecord, schema.KindDynamicRecord, schema.KindArray:
		return schema.NewUniformRecord(reduced)
	}
	return r, nil
}

func fitArray(cfg schema.Config, elems []schema.Schema) (schema.Schema, error) {
	return schema.NewArray(cfg.Reduce(elems...))
}

func atomic(p schema.Primitive) schema.Schema {
	return schema.Must(schema.NewAtomic(p))
}
