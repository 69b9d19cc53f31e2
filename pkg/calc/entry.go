package calc

import "time"

// Kind tells replay which tape lines carry user input.
type Kind string

const (
	KindInput  Kind = "input"
	KindResult Kind = "result"
	KindInfo   Kind = "info"
)

// RoundingFlag marks a printed value that rounding moved.
type RoundingFlag string

const (
	RoundedNone RoundingFlag = ""
	RoundedUp   RoundingFlag = "up"
	RoundedDown RoundingFlag = "down"
)

// Entry is one printed tape line. Input lines are the source of truth
// for replay; result and info lines are regenerated from them.
type Entry struct {
	Value         float64      `json:"value" yaml:"value"`
	Text          string       `json:"text" yaml:"text"`
	Symbol        string       `json:"symbol" yaml:"symbol"`
	Key           Key          `json:"key" yaml:"key"`
	Kind          Kind         `json:"kind" yaml:"kind"`
	Operand       *float64     `json:"operand,omitempty" yaml:"operand,omitempty"`
	PercentValue  *float64     `json:"percent_value,omitempty" yaml:"percent_value,omitempty"`
	PercentBase   *float64     `json:"percent_base,omitempty" yaml:"percent_base,omitempty"`
	PercentOp     Key          `json:"percent_op,omitempty" yaml:"percent_op,omitempty"`
	PercentSuffix bool         `json:"percent_suffix,omitempty" yaml:"percent_suffix,omitempty"`
	Rounding      RoundingFlag `json:"rounding,omitempty" yaml:"rounding,omitempty"`
	LeadSymbol    string       `json:"lead_symbol,omitempty" yaml:"lead_symbol,omitempty"`
	Time          time.Time    `json:"time" yaml:"time"`
}

// Editable reports whether EditEntry may change the line's operand.
func (e Entry) Editable() bool {
	if e.Kind != KindInput || e.Operand == nil {
		return false
	}
	switch e.Key {
	case KeyTotal, KeySubtotal, KeyGrandTotalLine, KeyGrandShowLine, KeyClearLine:
		return false
	}
	return true
}

func (e Entry) clone() Entry {
	e.Operand = cloneFloat(e.Operand)
	e.PercentValue = cloneFloat(e.PercentValue)
	e.PercentBase = cloneFloat(e.PercentBase)
	return e
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func floatPtr(v float64) *float64 {
	return &v
}
