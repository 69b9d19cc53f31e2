package calc

import "fmt"

func applyAddSub(op Key, a, b float64) float64 {
	if op == KeySub {
		return a - b
	}
	return a + b
}

func applyMultDiv(op Key, a, b float64) (float64, error) {
	if op == KeyDiv {
		if b == 0 {
			return 0, fmt.Errorf("%w: %v ÷ 0", ErrDivisionByZero, a)
		}
		return a / b, nil
	}
	return a * b, nil
}

func (e *Engine) discardUnaryStage() {
	if e.pending.family == familyDelta || e.pending.family == familyPower {
		e.pending = pendingOp{}
	}
}

// swapOperator replaces the operator of the last printed line when a
// second operator of the same family is pressed without a new operand.
func (e *Engine) swapOperator(op Key) {
	var last *Entry
	for i := len(e.entries) - 1; i >= 0; i-- {
		if e.entries[i].Kind == KindInput {
			last = &e.entries[i]
			break
		}
	}
	if last == nil || !sameFamily(last.Key, op) {
		return
	}
	last.Key = op
	last.Symbol = string(op)
	e.pending.op = op
	if !e.replaying {
		e.observer.TapeRefreshed(cloneEntries(e.entries))
	}
	e.emitStatus()
}

func sameFamily(a, b Key) bool {
	addSub := func(k Key) bool { return k == KeyAdd || k == KeySub }
	multDiv := func(k Key) bool { return k == KeyMul || k == KeyDiv }
	return addSub(a) && addSub(b) || multDiv(a) && multDiv(b)
}

func (e *Engine) addSubOperand() float64 {
	if !e.entered() && e.lastAddSubValue != nil && e.input == "0" {
		return *e.lastAddSubValue
	}
	return e.inputValue()
}

func (e *Engine) handleAddSub(op Key) error {
	if e.totalPending {
		e.totalPending = false
		e.accumulator = 0
		e.lastAddSubValue = nil
	}
	e.discardUnaryStage()

	if e.stage != nil {
		e.resolvePercentStage(op)
		return nil
	}

	if e.pending.family == familyAddSub && !e.entered() {
		if op != e.pending.op {
			e.swapOperator(op)
		}
		return nil
	}

	val := e.addSubOperand()
	printed := val

	switch e.pending.family {
	case familyMultDiv:
		left := e.pending.operand
		if e.entered() {
			res, err := applyMultDiv(e.pending.op, left, val)
			if err != nil {
				return err
			}
			left = e.round(res)
			e.multDivResults = append(e.multDivResults, left)
		} else {
			printed = left
		}
		e.pending = pendingOp{family: familyAddSub, operand: left}
		e.addSubResults = nil
	case familyAddSub:
		inter := e.round(applyAddSub(e.pending.op, e.pending.operand, val))
		e.addSubResults = append(e.addSubResults, inter)
		e.pending.operand = inter
		e.show(e.formatResult(inter))
	default:
		e.addSubResults = nil
		e.pending = pendingOp{family: familyAddSub, operand: val}
	}
	e.pending.op = op

	e.resetMultDivTotal()
	e.awaitingAddSubTotal = false
	e.print(e.inputLine(printed, string(op), op))
	e.resetInput()
	e.emitStatus()
	return nil
}

// resolvePercentStage applies a staged "base pct %" to the accumulator
// as an add-on or discount.
func (e *Engine) resolvePercentStage(op Key) {
	st := *e.stage
	e.stage = nil

	pv := e.round(st.base * st.percent / 100)
	signed := pv
	if op == KeySub {
		signed = -pv
	}
	res, flag := e.roundFlag(st.base + signed)

	e.pressOperand = floatPtr(st.percent)
	entry := e.inputLine(st.percent, string(KeyPercent), KeyPercent)
	entry.PercentValue = floatPtr(signed)
	entry.PercentBase = floatPtr(st.base)
	entry.PercentOp = op
	e.print(entry)
	e.print(e.resultLine(res, string(KeyTotal), KeyTotal, flag))
	e.show(e.formatResult(res))

	e.accumulator = round15(res)
	e.lastAddSubValue = nil
	e.lastAddSubOp = op
	e.resetInput()
	e.emitStatus()
}

func (e *Engine) handleMultDiv(op Key) error {
	e.discardUnaryStage()

	if e.pending.family == familyMultDiv && !e.entered() {
		if k, ok := e.ConstantK(); ok && k != 0 {
			e.feed(k)
			e.inputState = inputRecalled
			e.pressOperand = floatPtr(k)
			return e.handleEqual()
		}
		if op != e.pending.op {
			e.swapOperator(op)
		}
		return nil
	}

	if e.totalPending {
		e.totalPending = false
		e.accumulator = 0
		e.lastAddSubValue = nil
	}

	val := e.inputValue()
	printed := val
	e.awaitingMultDivTotal = false

	switch e.pending.family {
	case familyAddSub:
		left := e.pending.operand
		if e.entered() {
			left = e.round(applyAddSub(e.pending.op, left, val))
			e.addSubResults = append(e.addSubResults, left)
		} else {
			printed = left
		}
		e.pending = pendingOp{family: familyMultDiv, operand: left}
		e.multDivResults = nil
	case familyMultDiv:
		res, err := applyMultDiv(e.pending.op, e.pending.operand, val)
		if err != nil {
			return err
		}
		inter := e.round(res)
		e.multDivResults = append(e.multDivResults, inter)
		e.pending.operand = inter
		e.show(e.formatResult(inter))
	default:
		e.multDivResults = nil
		e.pending = pendingOp{family: familyMultDiv, operand: val}
	}
	e.pending.op = op

	e.awaitingAddSubTotal = false
	e.print(e.inputLine(printed, string(op), op))
	e.resetInput()
	e.emitStatus()
	return nil
}

func (e *Engine) handleEqual() error {
	switch e.pending.family {
	case familyDelta:
		return e.deltaSecond(e.inputValue())
	case familyPower:
		return e.powerSecond(e.inputValue())
	}

	if e.totalPending {
		e.totalPending = false
		e.accumulator = 0
		e.print(e.totalLine(0, string(KeyEquals), KeyEquals, RoundedNone))
		e.show(e.formatResult(0))
		e.resetInput()
		e.emitStatus()
		return nil
	}

	switch e.pending.family {
	case familyAddSub:
		return e.resolveAddSub()
	case familyMultDiv:
		return e.resolveMultDiv()
	}

	if e.lastOperation != nil {
		if e.entered() {
			return e.repeatConstant()
		}
		e.lastOperation = nil
	}

	if !e.entered() {
		if e.awaitingAddSubTotal {
			e.clearAddSubTotal()
			return nil
		}
		if e.awaitingMultDivTotal && e.lastMultDivResult != nil {
			e.multDivTotal()
			return nil
		}
	}

	if e.lastAddSubValue != nil || e.accumulator != 0 {
		e.handleTotal()
	}
	return nil
}

func (e *Engine) resolveAddSub() error {
	op, left := e.pending.op, e.pending.operand
	val := e.inputValue()

	e.print(e.inputLine(val, string(KeyEquals), KeyEquals))
	res := e.round(applyAddSub(op, left, val))
	e.accrueGrandTotal(res)
	e.accumulate(res)
	e.addSubResults = append(e.addSubResults, res)

	total, flag := e.roundFlag(e.accumulator)
	e.print(e.resultLine(total, string(KeyTotal), KeyTotal, flag))
	e.show(e.formatResult(total))

	e.pending = pendingOp{}
	e.lastAddSubValue = floatPtr(val)
	e.lastAddSubOp = op
	e.lastMultDivResult = nil
	e.awaitingAddSubTotal = true
	e.showResult(res)
	e.emitStatus()
	return nil
}

func (e *Engine) resolveMultDiv() error {
	op, left := e.pending.op, e.pending.operand
	val := e.inputValue()

	raw, err := applyMultDiv(op, left, val)
	if err != nil {
		return err
	}
	e.print(e.inputLine(val, string(KeyEquals), KeyEquals))
	e.lastOperation = &constantOp{op: op, operand: val}

	res, flag := e.roundFlag(raw)
	e.print(e.resultLine(res, "", KeyEquals, flag))
	e.show(e.formatResult(res))
	e.accrueGrandTotal(res)
	e.accumulate(res)
	e.printAccumulator()

	e.pending = pendingOp{}
	e.lastMultDivResult = floatPtr(res)
	e.multDivResults = append(e.multDivResults, res)
	e.awaitingMultDivTotal = true
	e.multDivTotalPendingClear = false
	e.showResult(res)
	e.emitStatus()
	return nil
}

// printAccumulator prints the running accumulator as a subtotal line.
func (e *Engine) printAccumulator() {
	acc, flag := e.roundFlag(e.accumulator)
	e.print(e.resultLine(acc, string(KeySubtotal), KeySubtotal, flag))
}

// repeatConstant applies the last multiplication or division to a new
// operand: 5 x 2 = then 3 = gives 6.
func (e *Engine) repeatConstant() error {
	c := *e.lastOperation
	val := e.inputValue()

	raw, err := applyMultDiv(c.op, val, c.operand)
	if err != nil {
		return err
	}
	e.print(e.inputLine(val, "", KeyEquals))
	info := e.inputLine(c.operand, string(c.op), KeyConstantLine)
	info.Kind = KindInfo
	e.print(info)

	res, flag := e.roundFlag(raw)
	e.print(e.resultLine(res, "", KeyEquals, flag))
	e.show(e.formatResult(res))
	e.accumulate(res)
	e.accrueGrandTotal(res)
	e.showResult(res)
	e.emitStatus()
	return nil
}

func (e *Engine) clearAddSubTotal() {
	e.accumulator = 0
	e.awaitingAddSubTotal = false
	e.lastAddSubValue = nil
	e.print(e.totalLine(0, string(KeyTotal), KeyEquals, RoundedNone))
	e.show(e.formatResult(0))
	e.resetInput()
	e.emitStatus()
}

// multDivTotal is the two step total after a multiplication chain: the
// first bare = prints the accumulator, the second clears it.
func (e *Engine) multDivTotal() {
	if !e.multDivTotalPendingClear {
		total, flag := e.roundFlag(e.accumulator)
		e.multDivTotalPendingClear = true
		e.lastOperation = nil
		e.print(e.totalLine(total, string(KeyTotal), KeyEquals, flag))
		e.show(e.formatResult(total))
		e.showResult(total)
		e.emitStatus()
		return
	}
	e.accumulator = 0
	e.resetMultDivTotal()
	e.print(e.totalLine(0, string(KeyTotal), KeyEquals, RoundedNone))
	e.show(e.formatResult(0))
	e.resetInput()
	e.emitStatus()
}

func (e *Engine) handlePercent() error {
	pct, ok := parseInput(e.input)
	if !ok {
		return nil
	}

	if e.pending.family != familyMultDiv {
		// only the input changes until + or - applies the stage
		e.touchInput()
		e.stage = &percentStage{base: e.accumulator, percent: pct}
		e.inputState = inputRecalled
		e.show(e.input + "%")
		return nil
	}

	op, base := e.pending.op, e.pending.operand
	pv := e.round(base * pct / 100)
	raw := pv
	if op == KeyDiv {
		if pct == 0 {
			return fmt.Errorf("%w: %v ÷ 0%%", ErrDivisionByZero, base)
		}
		raw = base / (pct / 100)
	}
	res, flag := e.roundFlag(raw)

	echo := e.inputLine(pct, "", KeyPercent)
	echo.PercentSuffix = true
	e.print(echo)
	line := e.resultLine(res, string(KeyPercent), KeyPercent, flag)
	line.PercentValue = floatPtr(pv)
	e.print(line)
	e.show(e.formatResult(res))

	e.accrueGrandTotal(res)
	e.accumulate(res)
	e.printAccumulator()

	e.pending = pendingOp{}
	e.lastMultDivResult = floatPtr(res)
	e.multDivResults = append(e.multDivResults, res)
	e.awaitingMultDivTotal = true
	e.multDivTotalPendingClear = false
	e.showResult(res)
	e.emitStatus()
	return nil
}
