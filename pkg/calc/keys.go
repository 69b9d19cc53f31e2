package calc

import (
	"fmt"
	"strings"
)

// Key identifies a single keypad button.
type Key string

const (
	Key0          Key = "0"
	Key1          Key = "1"
	Key2          Key = "2"
	Key3          Key = "3"
	Key4          Key = "4"
	Key5          Key = "5"
	Key6          Key = "6"
	Key7          Key = "7"
	Key8          Key = "8"
	Key9          Key = "9"
	KeyDoubleZero Key = "00"
	KeyTripleZero Key = "000"
	KeyDecimal    Key = "."

	KeyAdd      Key = "+"
	KeySub      Key = "-"
	KeyMul      Key = "x"
	KeyDiv      Key = "÷"
	KeyPercent  Key = "%"
	KeyPower    Key = "^"
	KeyDelta    Key = "Δ"
	KeySqrt     Key = "√"
	KeyEquals   Key = "="
	KeyTotal    Key = "T"
	KeySubtotal Key = "S"

	KeyGrandTotal Key = "GT"
	KeyRate       Key = "RATE"
	KeyConstant   Key = "K"
	KeyTaxAdd     Key = "TAX+"
	KeyTaxRemove  Key = "TAX-"
	KeyCost       Key = "COST"
	KeySell       Key = "SELL"
	KeyMargin     Key = "MARGIN"
	KeyMarkup     Key = "MARKUP"

	KeyClearAll   Key = "CLEAR_ALL"
	KeyClearEntry Key = "CE"
	KeyBackspace  Key = "BACKSPACE"
	KeySign       Key = "±"

	KeyMemoryAdd    Key = "M+"
	KeyMemorySub    Key = "M-"
	KeyMemoryRecall Key = "MR"
	KeyMemoryClear  Key = "MC"
)

// Keys recorded on tape lines only. They cannot be pressed.
const (
	KeyDeltaSecond    Key = "Δ2"
	KeyPowerSecond    Key = "POW2"
	KeyGrandTotalLine Key = "GT*"
	KeyGrandShowLine  Key = "GTS"
	KeyClearLine      Key = "C"
	KeyConstantLine   Key = "CONST"
	KeyDeltaPercent   Key = "Δ%"
	KeyDeltaTotal     Key = "ΔT"
)

var pressable = map[Key]struct{}{
	Key0: {}, Key1: {}, Key2: {}, Key3: {}, Key4: {}, Key5: {}, Key6: {}, Key7: {}, Key8: {}, Key9: {},
	KeyDoubleZero: {}, KeyTripleZero: {}, KeyDecimal: {},
	KeyAdd: {}, KeySub: {}, KeyMul: {}, KeyDiv: {}, KeyPercent: {}, KeyPower: {}, KeyDelta: {},
	KeySqrt: {}, KeyEquals: {}, KeyTotal: {}, KeySubtotal: {},
	KeyGrandTotal: {}, KeyRate: {}, KeyConstant: {}, KeyTaxAdd: {}, KeyTaxRemove: {},
	KeyCost: {}, KeySell: {}, KeyMargin: {}, KeyMarkup: {},
	KeyClearAll: {}, KeyClearEntry: {}, KeyBackspace: {}, KeySign: {},
	KeyMemoryAdd: {}, KeyMemorySub: {}, KeyMemoryRecall: {}, KeyMemoryClear: {},
}

// keys that record an undo checkpoint before they run.
var checkpointed = map[Key]struct{}{
	KeyAdd: {}, KeySub: {}, KeyMul: {}, KeyDiv: {}, KeyEquals: {}, KeyTotal: {}, KeySubtotal: {},
	KeyPercent: {}, KeyDelta: {}, KeySqrt: {}, KeyPower: {}, KeyGrandTotal: {}, KeyRate: {},
	KeyConstant: {}, KeyTaxAdd: {}, KeyTaxRemove: {}, KeyCost: {}, KeySell: {}, KeyMargin: {},
	KeyMarkup: {}, KeyClearAll: {}, KeyMemoryAdd: {}, KeyMemorySub: {}, KeyMemoryRecall: {},
	KeyMemoryClear: {},
}

var aliases = map[string]Key{
	"*":     KeyMul,
	"X":     KeyMul,
	"×":     KeyMul,
	"/":     KeyDiv,
	":":     KeyDiv,
	"ENTER": KeyEquals,
	"T1":    KeyTotal,
	"S1":    KeySubtotal,
	"+/-":   KeySign,
	"SQRT":  KeySqrt,
	"DELTA": KeyDelta,
	"AC":    KeyClearAll,
	"CA":    KeyClearAll,
	"⌫":     KeyBackspace,
	"BS":    KeyBackspace,
}

// ParseKey converts a key name into a Key.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := pressable[k]; ok {
		return k, nil
	}
	if k, ok := aliases[strings.ToUpper(s)]; ok {
		return k, nil
	}
	if k := Key(strings.ToUpper(s)); k.Pressable() {
		return k, nil
	}
	return "", fmt.Errorf("%w: key %q", ErrUnsupported, s)
}

// Pressable reports whether the key may be passed to PressKey.
func (k Key) Pressable() bool {
	_, ok := pressable[k]
	return ok
}

// IsNumeric reports whether the key edits the input buffer as a digit group.
func (k Key) IsNumeric() bool {
	switch k {
	case Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9, KeyDoubleZero, KeyTripleZero:
		return true
	}
	return false
}

func (k Key) checkpoints() bool {
	_, ok := checkpointed[k]
	return ok
}

func (k Key) String() string {
	return string(k)
}
