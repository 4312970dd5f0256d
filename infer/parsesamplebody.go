package infer

import (
	"strings"

	"github.com/siegeai/siegeinfer/schema"
	"github.com/valyala/fastjson"
)

func ParseSampleBodyBytes(cfg schema.Config, b []byte) (schema.Schema, error) {
	v, err := fastjson.ParseBytes(b)
	if err != nil {
		return nil, err
	}
	return ParseSampleBodyFastJson(cfg, v)
}

// ParseSampleBodyFastJson fits an already parsed value. Callers reusing a
// fastjson.Parser must not reuse it until this returns.
func ParseSampleBodyFastJson(cfg schema.Config, v *fastjson.Value) (schema.Schema, error) {
	return parseFastJsonValue(cfg, v)
}

func parseFastJsonValue(cfg schema.Config, v *fastjson.Value) (schema.Schema, error) {
	switch v.Type() {
	case fastjson.TypeObject:
		o, err := v.Object()
		if err != nil {
			return nil, err
		}
		return parseFastJsonObject(cfg, o)
	case fastjson.TypeArray:
		a, err := v.Array()
		if err != nil {
			return nil, err
		}
		return parseFastJsonArray(cfg, a)
	case fastjson.TypeString:
		return atomic(schema.String), nil
	case fastjson.TypeNumber:
		return parseFastJsonNumber(v), nil
	case fastjson.TypeTrue, fastjson.TypeFalse:
		return atomic(schema.Bool), nil
	case fastjson.TypeNull:
		return atomic(schema.Null), nil
	}

	panic("should be unreachable")
}

func parseFastJsonObject(cfg schema.Config, o *fastjson.Object) (schema.Schema, error) {
	ps := make(map[string]schema.Schema, o.Len())

	var visitErr error
	o.Visit(func(key []byte, v *fastjson.Value) {
		if visitErr != nil {
			return
		}
		child, childErr := parseFastJsonValue(cfg, v)
		if childErr != nil {
			visitErr = childErr
			return
		}

		k := string(key)
		if prev, ok := ps[k]; ok {
			// duplicate keys are legal JSON; keep both shapes
			child = cfg.Merge(prev, child)
		}
		ps[k] = child
	})

	if visitErr != nil {
		return nil, visitErr
	}

	return fitRecord(cfg, ps)
}

func parseFastJsonArray(cfg schema.Config, vs []*fastjson.Value) (schema.Schema, error) {
	es := make([]schema.Schema, len(vs))
	for i, v := range vs {
		e, err := parseFastJsonValue(cfg, v)
		if err != nil {
			return nil, err
		}
		es[i] = e
	}
	return fitArray(cfg, es)
}

// parseFastJsonNumber reports int for numbers written without a fraction or
// exponent, float otherwise.
func parseFastJsonNumber(v *fastjson.Value) schema.Schema {
	if _, err := v.Int64(); err == nil {
		return atomic(schema.Int)
	}
	if _, err := v.Uint64(); err == nil {
		return atomic(schema.Int)
	}
	if strings.ContainsAny(v.String(), ".eE") {
		return atomic(schema.Float)
	}
	return atomic(schema.Int)
}
