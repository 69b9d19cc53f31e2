package calc

import "fmt"

// history keeps bounded undo and redo stacks of tape snapshots.
type history struct {
	undo [][]Entry
	redo [][]Entry
	max  int
}

func newHistory(max int) *history {
	return &history{max: max}
}

func (h *history) push(stack [][]Entry, tape []Entry) [][]Entry {
	stack = append(stack, cloneEntries(tape))
	if len(stack) > h.max {
		stack = stack[len(stack)-h.max:]
	}
	return stack
}

func pop(stack [][]Entry) ([][]Entry, []Entry, bool) {
	n := len(stack)
	if n == 0 {
		return stack, nil, false
	}
	return stack[:n-1], stack[n-1], true
}

// checkpoint saves the tape before a state changing key.
func (e *Engine) checkpoint() {
	if e.replaying {
		return
	}
	e.history.undo = e.history.push(e.history.undo, e.entries)
	e.history.redo = nil
}

func (e *Engine) CanUndo() bool {
	return len(e.history.undo) > 0
}

func (e *Engine) CanRedo() bool {
	return len(e.history.redo) > 0
}

// Undo restores the tape saved before the last state changing key and
// rebuilds the engine from it.
func (e *Engine) Undo() bool {
	undo, tape, ok := pop(e.history.undo)
	if !ok {
		return false
	}
	e.history.undo = undo
	e.history.redo = e.history.push(e.history.redo, e.entries)
	e.entries = tape
	e.recalculate()
	return true
}

func (e *Engine) Redo() bool {
	redo, tape, ok := pop(e.history.redo)
	if !ok {
		return false
	}
	e.history.redo = redo
	e.history.undo = e.history.push(e.history.undo, e.entries)
	e.entries = tape
	e.recalculate()
	return true
}

// EditEntry changes the operand of an input line and recomputes the tape.
func (e *Engine) EditEntry(index int, value float64) error {
	if index < 0 || index >= len(e.entries) {
		return fmt.Errorf("%w: %d", ErrEntryIndex, index)
	}
	if !e.entries[index].Editable() {
		return fmt.Errorf("%w: %d", ErrNotEditable, index)
	}
	e.checkpoint()
	e.entries[index].Operand = floatPtr(value)
	e.entries[index].Value = value
	if err := e.recalculate(); err != nil {
		return fmt.Errorf("failed to recalculate tape after editing entry %d: %w", index, err)
	}
	return nil
}

// recalculate rebuilds all tape derived state by pressing the recorded
// input lines again from an empty engine. A fault locks the engine with
// the tape printed up to the failing line.
func (e *Engine) recalculate() error {
	tape := e.entries
	e.resetState()
	e.display = "0"
	e.replaying = true

	var err error
	for _, entry := range tape {
		if entry.Kind != KindInput {
			continue
		}
		if err = e.replay(entry); err != nil {
			break
		}
	}
	e.replaying = false
	e.pressOperand = nil

	if err != nil {
		e.observer.TapeRefreshed(cloneEntries(e.entries))
		e.fail(recalcErrMessage)
		return err
	}

	e.show(e.display)
	e.emitStatus()
	e.observer.TapeRefreshed(cloneEntries(e.entries))
	return nil
}

func (e *Engine) replay(entry Entry) error {
	if entry.Operand != nil {
		e.feed(*entry.Operand)
	}
	e.pressOperand = e.operand()
	defer func() { e.pressOperand = nil }()

	switch entry.Key {
	case KeyClearLine:
		e.clearAll()
		return nil
	case KeyDelta:
		if v, ok := e.unaryBase(); ok {
			e.deltaFirst(v)
		}
		return nil
	case KeyDeltaSecond:
		if e.pending.family != familyDelta {
			return nil
		}
		return e.deltaSecond(e.inputValue())
	case KeyPower:
		if v, ok := e.unaryBase(); ok {
			e.powerFirst(v)
		}
		return nil
	case KeyPowerSecond:
		if e.pending.family != familyPower {
			return nil
		}
		return e.powerSecond(e.inputValue())
	case KeyGrandTotalLine:
		e.gtPending = true
		e.handleTotal()
		return nil
	case KeyGrandShowLine:
		e.gtPending = true
		e.handleSubtotal()
		return nil
	case KeyPercent:
		if err := e.handlePercent(); err != nil {
			return err
		}
		if entry.PercentOp != "" {
			return e.handleAddSub(entry.PercentOp)
		}
		return nil
	}
	if !entry.Key.Pressable() {
		return nil
	}
	return e.dispatch(entry.Key)
}
