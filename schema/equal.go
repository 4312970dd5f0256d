package schema

import "maps"

// Equal reports whether a and b describe the same shape. Record weights and
// DynamicRecord key counts are observation annotations and are ignored; use Identical
// to compare them too.
func Equal(a, b Schema) bool {
	return equal(a, b, false)
}

// Identical is Equal that also compares record weights and key counts.
func Identical(a, b Schema) bool {
	return equal(a, b, true)
}

func equal(a, b Schema, strict bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case *Unknown:
		return true
	case *Atomic:
		return x.p == b.(*Atomic).p
	case *Array:
		return equal(x.elem, b.(*Array).elem, strict)
	case *UniformRecord:
		return equal(x.value, b.(*UniformRecord).value, strict)
	case *Optional:
		return equal(x.value, b.(*Optional).value, strict)
	case *Record:
		y := b.(*Record)
		if strict && x.seen != y.seen {
			return false
		}
		return equalFields(x.fields, y.fields, strict)
	case *DynamicRecord:
		y := b.(*DynamicRecord)
		if strict && !maps.Equal(x.counts, y.counts) {
			return false
		}
		return equalFields(x.fields, y.fields, strict)
	case *Union:
		return equalMembers(x.members, b.(*Union).members, strict)
	}
	panic("should be unreachable")
}

func equalFields(a, b map[string]Schema, strict bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !equal(v, w, strict) {
			return false
		}
	}
	return true
}

// equalMembers compares unions as sets.
func equalMembers(a, b []Schema, strict bool) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
outer:
	for _, m := range a {
		for i, n := range b {
			if !matched[i] && equal(m, n, strict) {
				matched[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}
