package calc

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnsupported     = errors.New("unsupported key")
	ErrDivisionByZero  = errors.New("unsupported divide by zero")
	ErrDomain          = errors.New("value outside of the operation domain")
	ErrEntryIndex      = errors.New("tape entry index out of range")
	ErrNotEditable     = errors.New("tape entry is not editable")
	ErrInvalidSettings = errors.New("invalid settings")
)

const (
	maxDigits        = 16
	maxHistory       = 200
	maxMemoryStack   = 8
	defaultTaxRate   = 22
	errorMessage     = "Error"
	recalcErrMessage = "Error Recalc"
)

type inputState int

const (
	inputIdle inputState = iota
	inputTyping
	inputRecalled
)

type family int

const (
	familyNone family = iota
	familyAddSub
	familyMultDiv
	familyDelta
	familyPower
)

// pendingOp is the single staged operation slot.
type pendingOp struct {
	family  family
	op      Key
	operand float64
}

type percentStage struct {
	base    float64
	percent float64
}

type constantOp struct {
	op      Key
	operand float64
}

type subMode int

const (
	subModeNone subMode = iota
	subModeRate
	subModeConstant
)

type PricingMode string

const (
	PricingMargin PricingMode = "margin"
	PricingMarkup PricingMode = "markup"
)

type business struct {
	cost   *float64
	sell   *float64
	margin float64
	markup float64
	mode   PricingMode
}

// Engine is a printing calculator. It is not safe for concurrent use.
type Engine struct {
	settings Settings
	observer Observer
	clock    func() time.Time

	entries   []Entry
	history   *history
	replaying bool
	locked    bool
	display   string

	input        string
	inputState   inputState
	addBuffer    string
	pressOperand *float64

	accumulator              float64
	grandTotal               float64
	pending                  pendingOp
	stage                    *percentStage
	lastOperation            *constantOp
	lastAddSubValue          *float64
	lastAddSubOp             Key
	addSubResults            []float64
	awaitingAddSubTotal      bool
	awaitingMultDivTotal     bool
	multDivTotalPendingClear bool
	lastMultDivResult        *float64
	multDivResults           []float64
	totalPending             bool
	gtPending                bool

	business     business
	taxRate      float64
	constantK    *float64
	subMode      subMode
	kInitial     string
	kFromDisplay bool

	memory      float64
	memoryStack []float64
}

type Option func(*Engine)

func WithSettings(s Settings) Option {
	return func(e *Engine) {
		if s.Validate() == nil {
			e.settings = s
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithTaxRate(rate float64) Option {
	return func(e *Engine) {
		e.taxRate = rate
	}
}

// WithClock sets the time source used to stamp tape lines.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		settings: DefaultSettings(),
		observer: NopObserver{},
		clock:    time.Now,
		history:  newHistory(maxHistory),
		taxRate:  defaultTaxRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetState()
	e.display = "0"
	return e
}

// SetObserver replaces the observer. A nil observer discards notifications.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	e.observer = o
}

// PressKey feeds one logical key into the engine. Arithmetic faults lock
// the engine and are returned; while locked every key other than
// CLEAR_ALL and CE is ignored.
func (e *Engine) PressKey(k Key) error {
	if !k.Pressable() {
		return ErrUnsupported
	}
	if e.locked && k != KeyClearAll && k != KeyClearEntry {
		return nil
	}
	if k.checkpoints() {
		e.checkpoint()
	}

	switch e.subMode {
	case subModeRate:
		e.confirmRate(k)
		return nil
	case subModeConstant:
		e.confirmConstant(k)
		return nil
	}

	e.pressOperand = e.operand()
	defer func() { e.pressOperand = nil }()

	if err := e.dispatch(k); err != nil {
		e.fail(errorMessage)
		return err
	}
	return nil
}

func (e *Engine) dispatch(k Key) error {
	// a staged percent only survives into + or -
	if k != KeyAdd && k != KeySub && e.stage != nil {
		e.stage = nil
		e.show(e.input)
	}
	if k.IsNumeric() {
		e.handleDigits(string(k))
		return nil
	}

	switch k {
	case KeyDecimal:
		e.handleDecimal()
	case KeyAdd, KeySub:
		return e.handleAddSub(k)
	case KeyMul, KeyDiv:
		return e.handleMultDiv(k)
	case KeyEquals:
		return e.handleEqual()
	case KeyTotal:
		e.handleTotal()
	case KeySubtotal:
		e.handleSubtotal()
	case KeyPercent:
		return e.handlePercent()
	case KeyDelta:
		return e.handleDelta()
	case KeySqrt:
		return e.handleSqrt()
	case KeyPower:
		return e.handlePower()
	case KeyGrandTotal:
		e.gtPending = !e.gtPending
		e.emitStatus()
	case KeyRate:
		e.beginRate()
	case KeyConstant:
		e.beginConstant()
	case KeyTaxAdd, KeyTaxRemove, KeyCost, KeySell, KeyMargin, KeyMarkup:
		return e.handleBusinessKey(k)
	case KeyClearAll:
		e.clearAll()
	case KeyClearEntry:
		e.clearEntry()
	case KeyBackspace:
		e.handleBackspace()
	case KeySign:
		e.toggleSign()
	case KeyMemoryAdd, KeyMemorySub, KeyMemoryRecall, KeyMemoryClear:
		e.handleMemoryKey(k)
	default:
		return ErrUnsupported
	}
	return nil
}

// resetState clears everything that replay derives from the tape.
// Tax rate, K, memory, settings and history survive.
func (e *Engine) resetState() {
	e.entries = nil
	e.locked = false
	e.input = "0"
	e.inputState = inputIdle
	e.addBuffer = ""
	e.pressOperand = nil

	e.accumulator = 0
	e.grandTotal = 0
	e.pending = pendingOp{}
	e.stage = nil
	e.lastOperation = nil
	e.lastAddSubValue = nil
	e.lastAddSubOp = ""
	e.addSubResults = nil
	e.awaitingAddSubTotal = false
	e.resetMultDivTotal()
	e.totalPending = false
	e.gtPending = false

	e.business = business{mode: PricingMargin}
	e.subMode = subModeNone
	e.kInitial = ""
	e.kFromDisplay = false
}

func (e *Engine) resetMultDivTotal() {
	e.awaitingMultDivTotal = false
	e.multDivTotalPendingClear = false
	e.lastMultDivResult = nil
	e.multDivResults = nil
}

// closeChains drops any staged operation.
func (e *Engine) closeChains() {
	e.pending = pendingOp{}
	e.stage = nil
	e.resetMultDivTotal()
}

func (e *Engine) fail(message string) {
	e.locked = true
	e.display = message
	e.observer.ErrorRaised(message)
	e.observer.DisplayUpdated(message)
	e.emitStatus()
}

// entered reports whether the buffer holds a value the user put there.
func (e *Engine) entered() bool {
	return e.inputState != inputIdle
}

// fresh reports whether the next digit starts a new number.
func (e *Engine) fresh() bool {
	return e.inputState != inputTyping
}

func (e *Engine) operand() *float64 {
	if !e.entered() {
		return nil
	}
	v, ok := parseInput(e.input)
	if !ok {
		return nil
	}
	return &v
}

func (e *Engine) inputValue() float64 {
	v, _ := parseInput(e.input)
	return v
}

func parseInput(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// touchInput applies the side effects of the user entering a number.
func (e *Engine) touchInput() {
	if e.awaitingMultDivTotal && e.fresh() && e.pending.family != familyMultDiv {
		e.resetMultDivTotal()
	}
	e.stage = nil
	e.totalPending = false
	e.awaitingAddSubTotal = false
}

// feed loads a recorded operand as if it had been typed.
func (e *Engine) feed(v float64) {
	e.touchInput()
	e.input = formatOperand(v)
	e.inputState = inputTyping
	e.addBuffer = ""
	e.show(e.input)
}

func (e *Engine) resetInput() {
	e.input = "0"
	e.inputState = inputIdle
	e.addBuffer = ""
}

// showResult leaves v in the buffer without marking it as typed.
func (e *Engine) showResult(v float64) {
	e.input = formatOperand(v)
	e.inputState = inputIdle
	e.addBuffer = ""
}

func (e *Engine) show(display string) {
	e.display = display
	if !e.replaying {
		e.observer.DisplayUpdated(display)
	}
}

func (e *Engine) handleDigits(d string) {
	e.touchInput()
	if e.settings.AddMode {
		e.handleCents(d)
		return
	}
	if e.input == "0" || e.fresh() {
		e.input = d
		if strings.Trim(e.input, "0") == "" {
			e.input = "0"
		}
	} else if digitCount(e.input)+len(d) <= maxDigits {
		e.input += d
	}
	e.inputState = inputTyping
	e.show(e.input)
}

// handleCents types digits as hundredths, the adding machine way.
func (e *Engine) handleCents(d string) {
	if e.fresh() {
		e.addBuffer = ""
	}
	if len(e.addBuffer)+len(d) <= maxDigits {
		e.addBuffer += d
	}
	e.addBuffer = strings.TrimLeft(e.addBuffer, "0")
	e.input = centsToInput(e.addBuffer)
	e.inputState = inputTyping
	e.show(e.input)
}

func centsToInput(buf string) string {
	n, _ := strconv.ParseFloat(buf, 64)
	return strconv.FormatFloat(n/100, 'f', 2, 64)
}

func (e *Engine) handleDecimal() {
	if e.settings.AddMode {
		return
	}
	e.touchInput()
	if e.fresh() {
		e.input = "0."
	} else if !strings.Contains(e.input, ".") {
		e.input += "."
	}
	e.inputState = inputTyping
	e.show(e.input)
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func (e *Engine) clearAll() {
	e.resetState()
	e.show("0")
	if !e.replaying {
		e.observer.TapeRefreshed([]Entry{})
	}
	e.print(Entry{Value: 0, Text: "0", Symbol: "C", Key: KeyClearLine, Kind: KindInput})
	e.emitStatus()
}

// clearEntry zeroes the buffer and lifts the error lock. Staged
// operations are kept.
func (e *Engine) clearEntry() {
	e.locked = false
	if e.entered() || e.input != "0" {
		e.touchInput()
		e.input = "0"
		e.inputState = inputTyping
	}
	e.addBuffer = ""
	e.show("0")
	e.emitStatus()
}

func (e *Engine) handleBackspace() {
	if e.inputState != inputTyping || e.input == "0" {
		e.Undo()
		return
	}
	if e.settings.AddMode && e.addBuffer != "" {
		e.addBuffer = e.addBuffer[:len(e.addBuffer)-1]
		e.input = centsToInput(e.addBuffer)
		e.show(e.input)
		return
	}
	e.input = e.input[:len(e.input)-1]
	if e.input == "" || e.input == "-" {
		e.input = "0"
	}
	e.show(e.input)
}

func (e *Engine) toggleSign() {
	if e.fresh() && e.input == "0" {
		return
	}
	v := e.inputValue()
	e.touchInput()
	if v == 0 {
		e.input = "0"
	} else {
		e.input = formatOperand(-v)
	}
	e.inputState = inputTyping
	e.addBuffer = ""
	e.show(e.input)
	e.emitStatus()
}

func (e *Engine) beginRate() {
	e.subMode = subModeRate
	e.input = formatOperand(e.taxRate)
	e.inputState = inputIdle
	e.show(e.input)
}

func (e *Engine) confirmRate(k Key) {
	switch {
	case k == KeyEquals:
		if v, ok := parseInput(e.input); ok {
			e.taxRate = v
			e.observer.RateUpdated(v)
		}
		e.subMode = subModeNone
		e.clearAll()
	case k.IsNumeric():
		e.handleDigits(string(k))
	case k == KeyDecimal:
		e.handleDecimal()
	}
}

func (e *Engine) beginConstant() {
	v, ok := parseInput(e.input)
	if ok && e.input != "0" {
		e.kInitial = formatOperand(v)
		e.kFromDisplay = true
	} else {
		e.kInitial = "0"
		if e.constantK != nil {
			e.kInitial = formatOperand(*e.constantK)
		}
		e.kFromDisplay = false
	}
	e.subMode = subModeConstant
	e.input = e.kInitial
	e.inputState = inputIdle
	e.show(e.input)
}

func (e *Engine) confirmConstant(k Key) {
	switch {
	case k == KeyEquals:
		v, ok := parseInput(e.input)
		if ok && v != 0 && (e.input != e.kInitial || e.kFromDisplay) {
			e.constantK = &v
		} else {
			e.constantK = nil
		}
		e.subMode = subModeNone
		e.clearAll()
	case k.IsNumeric():
		e.handleDigits(string(k))
	case k == KeyDecimal:
		e.handleDecimal()
	}
}

// print appends a tape line. The first input line of a key press records
// the operand the user entered before it, so replay can type it again.
func (e *Engine) print(entry Entry) {
	if entry.Kind == KindInput && entry.Operand == nil && e.pressOperand != nil {
		entry.Operand = cloneFloat(e.pressOperand)
		e.pressOperand = nil
	}
	entry.Time = e.clock()
	e.entries = append(e.entries, entry)
	if !e.replaying {
		e.observer.TapePrinted(entry.clone())
	}
}

func (e *Engine) inputLine(v float64, symbol string, k Key) Entry {
	return Entry{Value: v, Text: formatOperand(v), Symbol: symbol, Key: k, Kind: KindInput}
}

func (e *Engine) totalLine(v float64, symbol string, k Key, flag RoundingFlag) Entry {
	return Entry{Value: v, Text: e.formatResult(v), Symbol: symbol, Key: k, Kind: KindInput, Rounding: flag}
}

func (e *Engine) resultLine(v float64, symbol string, k Key, flag RoundingFlag) Entry {
	return Entry{Value: v, Text: e.formatResult(v), Symbol: symbol, Key: k, Kind: KindResult, Rounding: flag}
}

func (e *Engine) accumulate(v float64) {
	e.accumulator = round15(e.accumulator + v)
}

func (e *Engine) accrueGrandTotal(v float64) {
	if !e.settings.AccumulateGT {
		return
	}
	e.grandTotal = round15(e.grandTotal + v)
}

func (e *Engine) Status() Status {
	minus := false
	if v, ok := parseInput(e.input); ok {
		minus = v < 0 || (e.input == "0" && e.accumulator < 0 && e.inputState == inputTyping)
	}
	return Status{
		Acc1:  e.accumulator != 0,
		GT:    e.grandTotal != 0,
		Error: e.locked,
		Minus: minus,
		K:     cloneFloat(e.constantK),
	}
}

func (e *Engine) emitStatus() {
	if !e.replaying {
		e.observer.StatusUpdated(e.Status())
	}
}

// Display returns the text currently on the display.
func (e *Engine) Display() string {
	return e.display
}

// Entries returns a copy of the tape.
func (e *Engine) Entries() []Entry {
	return cloneEntries(e.entries)
}

func (e *Engine) Accumulator() float64 {
	return e.accumulator
}

func (e *Engine) GrandTotal() float64 {
	return e.grandTotal
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// Locked reports whether an arithmetic fault is waiting for CLEAR_ALL or CE.
func (e *Engine) Locked() bool {
	return e.locked
}

func (e *Engine) TaxRate() float64 {
	return e.taxRate
}

func (e *Engine) SetTaxRate(rate float64) {
	e.taxRate = rate
}

// ConstantK returns the explicit constant, if one is set.
func (e *Engine) ConstantK() (float64, bool) {
	if e.constantK == nil {
		return 0, false
	}
	return *e.constantK, true
}

// UpdateSettings merges u into the current settings. Settings apply to
// results computed from now on; the tape is not recomputed.
func (e *Engine) UpdateSettings(u SettingsUpdate) error {
	next := e.settings.Merge(u)
	if err := next.Validate(); err != nil {
		return err
	}
	e.settings = next
	if u.MemoryMode != nil {
		e.emitMemory()
	}
	return nil
}
