package schema

import (
	"strconv"
	"strings"
)

func (a *Atomic) String() string {
	return "Atomic(" + a.p.String() + ")"
}

func (a *Array) String() string {
	var sb strings.Builder
	writeSchema(&sb, a)
	return sb.String()
}

func (r *Record) String() string {
	var sb strings.Builder
	writeSchema(&sb, r)
	return sb.String()
}

func (d *DynamicRecord) String() string {
	var sb strings.Builder
	writeSchema(&sb, d)
	return sb.String()
}

func (u *UniformRecord) String() string {
	var sb strings.Builder
	writeSchema(&sb, u)
	return sb.String()
}

func (u *Union) String() string {
	var sb strings.Builder
	writeSchema(&sb, u)
	return sb.String()
}

func (o *Optional) String() string {
	var sb strings.Builder
	writeSchema(&sb, o)
	return sb.String()
}

func (*Unknown) String() string {
	return "Unknown()"
}

func writeSchema(sb *strings.Builder, s Schema) {
	switch x := s.(type) {
	case *Unknown, *Atomic:
		sb.WriteString(x.String())
	case *Array:
		sb.WriteString("Array(")
		writeSchema(sb, x.elem)
		sb.WriteByte(')')
	case *UniformRecord:
		sb.WriteString("UniformRecord(")
		writeSchema(sb, x.value)
		sb.WriteByte(')')
	case *Optional:
		sb.WriteString("Optional(")
		writeSchema(sb, x.value)
		sb.WriteByte(')')
	case *Record:
		sb.WriteString("Record(")
		writeFields(sb, x.fields)
		sb.WriteByte(')')
	case *DynamicRecord:
		sb.WriteString("DynamicRecord(")
		writeFields(sb, x.fields)
		sb.WriteString(", {")
		for i, k := range sortedKeys(x.counts) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			sb.WriteString(strconv.Itoa(x.counts[k]))
		}
		sb.WriteString("})")
	case *Union:
		sb.WriteString("Union({")
		for i, m := range x.members {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeSchema(sb, m)
		}
		sb.WriteString("})")
	default:
		panic("should be unreachable")
	}
}

func writeFields(sb *strings.Builder, fields map[string]Schema) {
	sb.WriteByte('{')
	for i, k := range sortedKeys(fields) {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteString(": ")
		writeSchema(sb, fields[k])
	}
	sb.WriteByte('}')
}
