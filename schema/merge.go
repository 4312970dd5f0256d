package schema

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Merge combines a and b into one schema describing both, using the default
// configuration.
func Merge(a, b Schema) Schema {
	return DefaultConfig().Merge(a, b)
}

// Reduce folds schemas into one with the default configuration.
func Reduce(schemas ...Schema) Schema {
	return DefaultConfig().Reduce(schemas...)
}

// Reduce returns Unknown for no schemas, the schema itself for one, and otherwise the
// left fold of Merge. Any grouping or ordering of the fold gives an equal result.
func (c Config) Reduce(schemas ...Schema) Schema {
	var res Schema = unknown
	for _, s := range schemas {
		res = c.Merge(res, s)
	}
	return res
}

// Merge never mutates a or b; the result may share unchanged sub-schemas with them.
func (c Config) Merge(a, b Schema) Schema {
	if a == nil || a.Kind() == KindUnknown {
		if b == nil {
			return unknown
		}
		return b
	}
	if b == nil || b.Kind() == KindUnknown {
		return a
	}

	if !annotated(a) && Equal(a, b) {
		return a
	}

	an, bn := isNull(a), isNull(b)
	switch {
	case an && bn:
		return a
	case an:
		return optionalOf(b)
	case bn:
		return optionalOf(a)
	}

	ao, aOpt := a.(*Optional)
	bo, bOpt := b.(*Optional)
	switch {
	case aOpt && bOpt:
		return &Optional{value: c.Merge(ao.value, bo.value)}
	case aOpt:
		return &Optional{value: c.Merge(ao.value, b)}
	case bOpt:
		return &Optional{value: c.Merge(a, bo.value)}
	}

	_, aUnion := a.(*Union)
	_, bUnion := b.(*Union)
	if !aUnion && !bUnion && c.slot(a) == c.slot(b) {
		return c.combine(a, b)
	}

	return c.union(a, b)
}

func optionalOf(s Schema) Schema {
	if o, ok := s.(*Optional); ok {
		return o
	}
	return &Optional{value: s}
}

// union merges the members of a and b slot by slot. Members sharing a slot are always
// mergeable without producing another union.
func (c Config) union(a, b Schema) Schema {
	slots := make(map[string]Schema)
	order := make([]string, 0)
	insert := func(m Schema) {
		k := c.slot(m)
		if prev, ok := slots[k]; ok {
			slots[k] = c.combine(prev, m)
			return
		}
		slots[k] = m
		order = append(order, k)
	}
	for _, m := range members(a) {
		insert(m)
	}
	for _, m := range members(b) {
		insert(m)
	}

	if len(order) == 1 {
		return slots[order[0]]
	}

	ms := make([]Schema, 0, len(order))
	for _, k := range order {
		ms = append(ms, slots[k])
	}
	sortMembers(ms)
	return &Union{members: ms}
}

func members(s Schema) []Schema {
	if u, ok := s.(*Union); ok {
		return u.members
	}
	return []Schema{s}
}

// slot names the equivalence class a union member belongs to. Two schemas with the
// same slot merge into a single non-union schema.
func (c Config) slot(s Schema) string {
	switch x := s.(type) {
	case *Atomic:
		return "atomic:" + x.p.String()
	case *Array:
		return "array"
	case *UniformRecord:
		return "uniform"
	case *Record:
		if c.Mode == ModeLabel {
			return "record:" + keySet(x.Keys())
		}
		return "record"
	case *DynamicRecord:
		if c.Mode == ModeLabel {
			return "dynamic"
		}
		return "record"
	}
	panic("should be unreachable")
}

// keySet renders sorted keys so that different key sets never collide, whatever
// characters the keys contain.
func keySet(keys []string) string {
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
	}
	return sb.String()
}

func (c Config) checkSlots(ms []Schema) error {
	seen := make(map[string]Schema, len(ms))
	for _, m := range ms {
		k := c.slot(m)
		if prev, ok := seen[k]; ok {
			return fmt.Errorf("%w: union members %s and %s merge in %s mode", ErrInvalidSchemaContent, prev, m, c.Mode)
		}
		seen[k] = m
	}
	return nil
}

// Validate checks that every union inside s holds members c keeps apart. Merge only
// behaves as a semilattice on schemas that pass.
func (c Config) Validate(s Schema) error {
	switch x := s.(type) {
	case *Array:
		return c.Validate(x.elem)
	case *UniformRecord:
		return c.Validate(x.value)
	case *Optional:
		return c.Validate(x.value)
	case *Record:
		return c.validateFields(x.fields)
	case *DynamicRecord:
		return c.validateFields(x.fields)
	case *Union:
		if err := c.checkSlots(x.members); err != nil {
			return err
		}
		for _, m := range x.members {
			if err := c.Validate(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Config) validateFields(fields map[string]Schema) error {
	for _, k := range sortedKeys(fields) {
		if err := c.Validate(fields[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	return nil
}

// combine merges two schemas of the same slot.
func (c Config) combine(a, b Schema) Schema {
	switch x := a.(type) {
	case *Atomic:
		return x
	case *Array:
		return &Array{elem: c.Merge(x.elem, b.(*Array).elem)}
	case *UniformRecord:
		return &UniformRecord{value: c.Merge(x.value, b.(*UniformRecord).value)}
	case *Record:
		switch y := b.(type) {
		case *Record:
			return c.mergeRecords(x, y)
		case *DynamicRecord:
			return c.mergeDynamicAndRecord(y, x)
		}
	case *DynamicRecord:
		switch y := b.(type) {
		case *Record:
			return c.mergeDynamicAndRecord(x, y)
		case *DynamicRecord:
			return c.mergeDynamicRecords(x, y)
		}
	}
	panic("should be unreachable")
}

func (c Config) mergeRecords(a, b *Record) Schema {
	if sameKeys(a.fields, b.fields) {
		fields := make(map[string]Schema, len(a.fields))
		for k, v := range a.fields {
			fields[k] = c.Merge(v, b.fields[k])
		}
		return &Record{fields: fields, seen: a.seen + b.seen}
	}

	counts := make(map[string]int, max(len(a.fields), len(b.fields)))
	for k := range a.fields {
		counts[k] += a.seen
	}
	for k := range b.fields {
		counts[k] += b.seen
	}
	return &DynamicRecord{fields: c.mergeFields(a.fields, b.fields), counts: counts}
}

func (c Config) mergeDynamicAndRecord(d *DynamicRecord, r *Record) Schema {
	counts := make(map[string]int, len(d.counts)+len(r.fields))
	for k, n := range d.counts {
		counts[k] = n
	}
	for k := range r.fields {
		counts[k] += r.seen
	}
	return &DynamicRecord{fields: c.mergeFields(d.fields, r.fields), counts: counts}
}

func (c Config) mergeDynamicRecords(a, b *DynamicRecord) Schema {
	counts := make(map[string]int, max(len(a.counts), len(b.counts)))
	for k, n := range a.counts {
		counts[k] += n
	}
	for k, n := range b.counts {
		counts[k] += n
	}
	return &DynamicRecord{fields: c.mergeFields(a.fields, b.fields), counts: counts}
}

// mergeFields unions the key sets, merging values of shared keys and passing the
// others through.
func (c Config) mergeFields(a, b map[string]Schema) map[string]Schema {
	res := make(map[string]Schema, max(len(a), len(b)))

	for k, v := range a {
		if w, in := b[k]; in {
			res[k] = c.Merge(v, w)
		} else {
			res[k] = v
		}
	}

	for k, v := range b {
		if _, in := a[k]; in {
			continue
		}
		res[k] = v
	}

	return res
}

func sameKeys(a, b map[string]Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// annotated reports whether s carries record weights or key counts anywhere, in
// which case merging it with an equal schema still has to add those up.
func annotated(s Schema) bool {
	switch x := s.(type) {
	case *Record, *DynamicRecord:
		return true
	case *Array:
		return annotated(x.elem)
	case *UniformRecord:
		return annotated(x.value)
	case *Optional:
		return annotated(x.value)
	case *Union:
		return slices.ContainsFunc(x.members, annotated)
	}
	return false
}

func sortMembers(ms []Schema) {
	slices.SortStableFunc(ms, func(a, b Schema) int {
		if c := cmp.Compare(memberRank(a), memberRank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.String(), b.String())
	})
}

// memberRank orders union members independently of the merge mode so rendering is
// deterministic.
func memberRank(s Schema) string {
	switch x := s.(type) {
	case *Atomic:
		return "1:" + x.p.String()
	case *Array:
		return "2"
	case *Record:
		return "3:" + keySet(x.Keys())
	case *DynamicRecord:
		return "4:" + keySet(x.Keys())
	case *UniformRecord:
		return "5"
	}
	return "9"
}
