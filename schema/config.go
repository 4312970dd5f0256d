package schema

import "fmt"

// Mode decides what happens when two records with different key sets meet.
type Mode int

const (
	// ModeKind treats records as the same kind whatever keys they carry, so differing
	// key sets promote to a DynamicRecord.
	ModeKind Mode = 0
	// ModeLabel treats each key set as a different shape, so differing key sets end up
	// as separate members of a Union.
	ModeLabel Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeKind:
		return "kind"
	case ModeLabel:
		return "label"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "kind":
		return ModeKind, nil
	case "label":
		return ModeLabel, nil
	}
	return 0, fmt.Errorf("%w: equivalence mode must be \"kind\" or \"label\", got %q", ErrInvalidConfiguration, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeKind && m != ModeLabel {
		return nil, fmt.Errorf("%w: unknown equivalence mode %d", ErrInvalidConfiguration, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Config is the record unification policy. It is a plain value: every fit or
// reduction run works against the copy it was handed.
type Config struct {
	// UnifyRecords collapses a freshly fitted record into a UniformRecord when all
	// of its values share one record or array shape.
	UnifyRecords bool `json:"unifyRecords"`
	Mode         Mode `json:"equivalenceMode"`
}

func DefaultConfig() Config {
	return Config{UnifyRecords: true, Mode: ModeKind}
}

func NewConfig(unifyRecords bool, equivalenceMode string) (Config, error) {
	m, err := ParseMode(equivalenceMode)
	if err != nil {
		return Config{}, err
	}
	return Config{UnifyRecords: unifyRecords, Mode: m}, nil
}
