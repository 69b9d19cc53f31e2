package calc

import (
	"fmt"
	"math"
)

// unaryBase picks the value a unary key works on: the entered number,
// then the staged chain operand, then the accumulator.
func (e *Engine) unaryBase() (float64, bool) {
	v, ok := parseInput(e.input)
	if ok && (e.entered() || e.input != "0") {
		return v, true
	}
	if e.pending.family == familyAddSub || e.pending.family == familyMultDiv {
		return e.pending.operand, true
	}
	if e.accumulator != 0 {
		return e.accumulator, true
	}
	return v, ok
}

func (e *Engine) handleDelta() error {
	v, ok := e.unaryBase()
	if !ok {
		return nil
	}
	if e.pending.family == familyDelta {
		return e.deltaSecond(v)
	}
	e.deltaFirst(v)
	return nil
}

func (e *Engine) deltaFirst(v float64) {
	e.closeChains()
	e.pending = pendingOp{family: familyDelta, op: KeyDelta, operand: v}
	e.print(e.inputLine(v, string(KeyDelta), KeyDelta))
	e.resetInput()
	e.emitStatus()
}

// deltaSecond prints the difference between the staged value and base,
// and that difference as a percentage of base.
func (e *Engine) deltaSecond(base float64) error {
	if base == 0 {
		return fmt.Errorf("%w: delta base", ErrDivisionByZero)
	}
	e.touchInput()
	diff := e.pending.operand - base
	pct, pctFlag := e.roundFlag(diff / base * 100)
	d, flag := e.roundFlag(diff)

	e.pressOperand = floatPtr(base)
	e.print(e.inputLine(base, string(KeyEquals), KeyDeltaSecond))
	e.print(e.resultLine(pct, string(KeyPercent), KeyDeltaPercent, pctFlag))
	e.print(e.resultLine(d, string(KeyTotal), KeyDeltaTotal, flag))
	e.show(e.formatResult(d))

	e.accrueGrandTotal(d)
	e.accumulator = round15(d)
	e.pending = pendingOp{}
	e.showResult(d)
	e.emitStatus()
	return nil
}

func (e *Engine) handleSqrt() error {
	v, ok := e.unaryBase()
	if !ok {
		return nil
	}
	if v < 0 {
		return fmt.Errorf("%w: square root of %v", ErrDomain, v)
	}
	e.closeChains()
	res, flag := e.roundFlag(math.Sqrt(v))
	e.print(e.inputLine(v, string(KeySqrt), KeySqrt))
	e.print(e.resultLine(res, "", KeyEquals, flag))
	e.show(e.formatResult(res))
	e.accrueGrandTotal(res)
	e.showResult(res)
	e.emitStatus()
	return nil
}

func (e *Engine) handlePower() error {
	v, ok := e.unaryBase()
	if !ok {
		return nil
	}
	if e.pending.family == familyPower {
		return e.powerSecond(v)
	}
	e.powerFirst(v)
	return nil
}

func (e *Engine) powerFirst(v float64) {
	e.closeChains()
	e.pending = pendingOp{family: familyPower, op: KeyPower, operand: v}
	e.print(e.inputLine(v, string(KeyPower), KeyPower))
	e.resetInput()
	e.emitStatus()
}

func (e *Engine) powerSecond(exp float64) error {
	raw := math.Pow(e.pending.operand, exp)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return fmt.Errorf("%w: %v ^ %v", ErrDomain, e.pending.operand, exp)
	}
	e.touchInput()
	res, flag := e.roundFlag(raw)

	e.pressOperand = floatPtr(exp)
	e.print(e.inputLine(exp, string(KeyEquals), KeyPowerSecond))
	e.print(e.resultLine(res, "", KeyEquals, flag))
	e.show(e.formatResult(res))

	e.accrueGrandTotal(res)
	e.pending = pendingOp{}
	e.showResult(res)
	e.emitStatus()
	return nil
}
