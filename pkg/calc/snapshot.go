package calc

// Snapshot is the persistent form of an engine. The tape is the source of
// truth; everything it derives is rebuilt on Restore. The remaining fields
// hold what the last key changed without printing.
type Snapshot struct {
	Entries      []Entry       `json:"entries" yaml:"entries"`
	Input        string        `json:"input,omitempty" yaml:"input,omitempty"`
	Entered      bool          `json:"entered,omitempty" yaml:"entered,omitempty"`
	Recalled     bool          `json:"recalled,omitempty" yaml:"recalled,omitempty"`
	AddBuffer    string        `json:"add_buffer,omitempty" yaml:"add_buffer,omitempty"`
	Display      string        `json:"display,omitempty" yaml:"display,omitempty"`
	Locked       bool          `json:"locked,omitempty" yaml:"locked,omitempty"`
	Percent      *PercentStage `json:"percent,omitempty" yaml:"percent,omitempty"`
	SubMode      string        `json:"sub_mode,omitempty" yaml:"sub_mode,omitempty"`
	KInitial     string        `json:"k_initial,omitempty" yaml:"k_initial,omitempty"`
	KFromDisplay bool          `json:"k_from_display,omitempty" yaml:"k_from_display,omitempty"`
	GTPending    bool          `json:"gt_pending,omitempty" yaml:"gt_pending,omitempty"`
	Settings     Settings      `json:"settings" yaml:"settings"`
	TaxRate      float64       `json:"tax_rate" yaml:"tax_rate"`
	ConstantK    *float64      `json:"constant_k,omitempty" yaml:"constant_k,omitempty"`
	Memory       float64       `json:"memory,omitempty" yaml:"memory,omitempty"`
	MemoryStack  []float64     `json:"memory_stack,omitempty" yaml:"memory_stack,omitempty"`
	Undo         [][]Entry     `json:"undo,omitempty" yaml:"undo,omitempty"`
	Redo         [][]Entry     `json:"redo,omitempty" yaml:"redo,omitempty"`
}

// PercentStage is a % waiting for + or - to apply it to Base.
type PercentStage struct {
	Base    float64 `json:"base" yaml:"base"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// Sub-modes a snapshot can be taken in.
const (
	SubModeRate     = "rate"
	SubModeConstant = "constant"
)

func (m subMode) String() string {
	switch m {
	case subModeRate:
		return SubModeRate
	case subModeConstant:
		return SubModeConstant
	default:
		return ""
	}
}

func parseSubMode(s string) subMode {
	switch s {
	case SubModeRate:
		return subModeRate
	case SubModeConstant:
		return subModeConstant
	default:
		return subModeNone
	}
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Entries:      cloneEntries(e.entries),
		Display:      e.display,
		Locked:       e.locked,
		SubMode:      e.subMode.String(),
		KInitial:     e.kInitial,
		KFromDisplay: e.kFromDisplay,
		GTPending:    e.gtPending,
		Settings:     e.settings,
		TaxRate:      e.taxRate,
		ConstantK:    cloneFloat(e.constantK),
		Memory:       e.memory,
		MemoryStack:  append([]float64(nil), e.memoryStack...),
	}
	if e.entered() || e.subMode != subModeNone {
		s.Input = e.input
		s.Entered = e.entered()
		s.Recalled = e.inputState == inputRecalled
		s.AddBuffer = e.addBuffer
	}
	if e.stage != nil {
		s.Percent = &PercentStage{Base: e.stage.base, Percent: e.stage.percent}
	}
	for _, tape := range e.history.undo {
		s.Undo = append(s.Undo, cloneEntries(tape))
	}
	for _, tape := range e.history.redo {
		s.Redo = append(s.Redo, cloneEntries(tape))
	}
	return s
}

// Restore replaces the engine state with s and replays its tape. Invalid
// settings are rejected before anything changes. What the tape cannot
// rebuild (typed input, a staged %, a sub-mode, the error lock) is put back
// after the replay, so a restored engine answers the next key the same way
// the saved one would have.
func (e *Engine) Restore(s Snapshot) error {
	if err := s.Settings.Validate(); err != nil {
		return err
	}
	e.settings = s.Settings
	e.taxRate = s.TaxRate
	e.constantK = cloneFloat(s.ConstantK)
	e.memory = s.Memory
	e.memoryStack = append([]float64(nil), s.MemoryStack...)

	e.history = newHistory(maxHistory)
	for _, tape := range s.Undo {
		e.history.undo = e.history.push(e.history.undo, tape)
	}
	for _, tape := range s.Redo {
		e.history.redo = e.history.push(e.history.redo, tape)
	}

	e.entries = cloneEntries(s.Entries)
	if err := e.recalculate(); err != nil {
		return err
	}

	mode := parseSubMode(s.SubMode)
	switch {
	case s.Entered:
		if v, ok := parseInput(s.Input); ok {
			// sub-mode typing never reaches the registers
			if mode == subModeNone {
				e.feed(v)
			}
			e.input = s.Input
			e.inputState = inputTyping
			if s.Recalled {
				e.inputState = inputRecalled
			}
			e.addBuffer = s.AddBuffer
			e.show(e.input)
		}
	case mode != subModeNone:
		e.input = s.Input
		if e.input == "" {
			e.input = "0"
		}
		e.inputState = inputIdle
		e.show(e.input)
	}

	if s.Percent != nil {
		e.stage = &percentStage{base: s.Percent.Base, percent: s.Percent.Percent}
	}
	e.subMode = mode
	e.kInitial = s.KInitial
	e.kFromDisplay = s.KFromDisplay
	e.gtPending = s.GTPending
	e.locked = s.Locked
	if s.Display != "" && s.Display != e.display {
		e.show(s.Display)
	}
	e.emitStatus()
	return nil
}
