package calc

import (
	"fmt"
	"strings"
)

type RoundingMode string

const (
	RoundNone     RoundingMode = "none"
	RoundTruncate RoundingMode = "truncate"
	RoundUp       RoundingMode = "up"
	RoundNearest5 RoundingMode = "nearest5"
)

func (m RoundingMode) Valid() bool {
	switch m {
	case RoundNone, RoundTruncate, RoundUp, RoundNearest5:
		return true
	}
	return false
}

func (m RoundingMode) String() string {
	return string(m)
}

// Set and Type let the mode be used as a command line flag value.
func (m *RoundingMode) Set(s string) error {
	return m.UnmarshalText([]byte(s))
}

func (m *RoundingMode) Type() string {
	return "rounding"
}

func (m *RoundingMode) UnmarshalText(text []byte) error {
	v := RoundingMode(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: rounding mode %q", ErrInvalidSettings, text)
	}
	*m = v
	return nil
}

type MemoryMode string

const (
	MemoryAlgebraic MemoryMode = "algebraic"
	MemoryStack     MemoryMode = "stack"
)

func (m MemoryMode) Valid() bool {
	return m == MemoryAlgebraic || m == MemoryStack
}

func (m MemoryMode) String() string {
	return string(m)
}

func (m *MemoryMode) Set(s string) error {
	return m.UnmarshalText([]byte(s))
}

func (m *MemoryMode) Type() string {
	return "memory"
}

func (m *MemoryMode) UnmarshalText(text []byte) error {
	v := MemoryMode(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: memory mode %q", ErrInvalidSettings, text)
	}
	*m = v
	return nil
}

const maxDecimals = 8

// Settings controls rounding, tape formatting and the memory register.
type Settings struct {
	RoundingMode RoundingMode `json:"rounding_mode" yaml:"rounding_mode"`
	Decimals     int          `json:"decimals" yaml:"decimals"`
	Float        bool         `json:"float" yaml:"float"`
	AddMode      bool         `json:"add_mode" yaml:"add_mode"`
	AccumulateGT bool         `json:"accumulate_gt" yaml:"accumulate_gt"`
	MemoryMode   MemoryMode   `json:"memory_mode" yaml:"memory_mode"`
}

func DefaultSettings() Settings {
	return Settings{
		RoundingMode: RoundNone,
		Decimals:     2,
		MemoryMode:   MemoryAlgebraic,
	}
}

func (s Settings) Validate() error {
	if !s.RoundingMode.Valid() {
		return fmt.Errorf("%w: rounding mode %q", ErrInvalidSettings, s.RoundingMode)
	}
	if s.Decimals < 0 || s.Decimals > maxDecimals {
		return fmt.Errorf("%w: decimals %d out of range [0, %d]", ErrInvalidSettings, s.Decimals, maxDecimals)
	}
	if !s.MemoryMode.Valid() {
		return fmt.Errorf("%w: memory mode %q", ErrInvalidSettings, s.MemoryMode)
	}
	return nil
}

// SettingsUpdate is a partial change; nil fields keep their value.
type SettingsUpdate struct {
	RoundingMode *RoundingMode
	Decimals     *int
	Float        *bool
	AddMode      *bool
	AccumulateGT *bool
	MemoryMode   *MemoryMode
}

func (s Settings) Merge(u SettingsUpdate) Settings {
	if u.RoundingMode != nil {
		s.RoundingMode = *u.RoundingMode
	}
	if u.Decimals != nil {
		s.Decimals = *u.Decimals
	}
	if u.Float != nil {
		s.Float = *u.Float
	}
	if u.AddMode != nil {
		s.AddMode = *u.AddMode
	}
	if u.AccumulateGT != nil {
		s.AccumulateGT = *u.AccumulateGT
	}
	if u.MemoryMode != nil {
		s.MemoryMode = *u.MemoryMode
	}
	return s
}
