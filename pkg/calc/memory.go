package calc

import "math"

// handleMemoryKey runs M+, M-, MR and MC against the single register or
// the bounded stack, depending on the memory mode. Memory keys never
// print on the tape.
func (e *Engine) handleMemoryKey(k Key) {
	if e.settings.MemoryMode == MemoryStack {
		e.handleStackKey(k)
	} else {
		e.handleRegisterKey(k)
	}
	// the stored number stays entered, the next digit starts a new one
	if (k == KeyMemoryAdd || k == KeyMemorySub) && e.inputState == inputTyping {
		e.inputState = inputRecalled
	}
	e.emitMemory()
}

func (e *Engine) handleRegisterKey(k Key) {
	switch k {
	case KeyMemoryAdd:
		e.memory = round15(e.memory + e.inputValue())
	case KeyMemorySub:
		e.memory = round15(e.memory - e.inputValue())
	case KeyMemoryRecall:
		e.recall(e.memory)
	case KeyMemoryClear:
		e.memory = 0
	}
}

func (e *Engine) handleStackKey(k Key) {
	switch k {
	case KeyMemoryAdd:
		e.memoryStack = append(e.memoryStack, e.inputValue())
		if len(e.memoryStack) > maxMemoryStack {
			e.memoryStack = e.memoryStack[len(e.memoryStack)-maxMemoryStack:]
		}
	case KeyMemorySub:
		e.popMemory(e.inputValue())
	case KeyMemoryRecall:
		if n := len(e.memoryStack); n > 0 {
			top := e.memoryStack[n-1]
			e.memoryStack = e.memoryStack[:n-1]
			e.recall(top)
		}
	case KeyMemoryClear:
		e.memoryStack = nil
	}
}

// popMemory removes the most recent stacked value equal to v at three
// decimals, or the top of the stack when none matches.
func (e *Engine) popMemory(v float64) {
	n := len(e.memoryStack)
	if n == 0 {
		return
	}
	for i := n - 1; i >= 0; i-- {
		if math.Abs(e.memoryStack[i]-v) < 0.0005 {
			e.memoryStack = append(e.memoryStack[:i], e.memoryStack[i+1:]...)
			return
		}
	}
	e.memoryStack = e.memoryStack[:n-1]
}

func (e *Engine) recall(v float64) {
	e.touchInput()
	e.input = formatOperand(v)
	e.inputState = inputRecalled
	e.addBuffer = ""
	e.show(e.input)
	e.emitStatus()
}

// Memory reports the memory register, or the stack in stack mode.
func (e *Engine) Memory() MemoryStatus {
	if e.settings.MemoryMode == MemoryStack {
		status := MemoryStatus{
			Mode:      MemoryStack,
			Stack:     append([]float64(nil), e.memoryStack...),
			HasMemory: len(e.memoryStack) > 0,
		}
		if n := len(e.memoryStack); n > 0 {
			status.Memory = e.memoryStack[n-1]
		}
		return status
	}
	return MemoryStatus{
		Mode:      MemoryAlgebraic,
		Memory:    e.memory,
		HasMemory: e.memory != 0,
	}
}

func (e *Engine) emitMemory() {
	if !e.replaying {
		e.observer.MemoryUpdated(e.Memory())
	}
}
