package calc

// handleTotal prints the accumulator. The first T keeps it and adds it to
// the grand total; a second T (or T after a finished add chain) clears it.
// With GT armed, T prints and clears the grand total instead.
func (e *Engine) handleTotal() {
	e.closeChains()
	e.lastOperation = nil

	if e.gtPending {
		e.gtPending = false
		gt, flag := e.roundFlag(e.grandTotal)
		e.print(e.totalLine(gt, string(KeyGrandTotalLine), KeyGrandTotalLine, flag))
		e.show(e.formatResult(gt))
		e.grandTotal = 0
		e.showResult(gt)
		e.emitStatus()
		return
	}

	second := e.totalPending || e.awaitingAddSubTotal
	e.awaitingAddSubTotal = false
	total, flag := e.roundFlag(e.accumulator)

	symbol := "◇"
	if second {
		symbol = "*"
	}
	e.print(e.totalLine(total, symbol, KeyTotal, flag))
	e.show(e.formatResult(total))

	if second {
		e.accumulator = 0
		e.totalPending = false
		e.lastAddSubValue = nil
	} else {
		e.totalPending = true
		e.accrueGrandTotal(total)
	}
	e.showResult(total)
	e.emitStatus()
}

// handleSubtotal prints the accumulator, or the grand total with GT
// armed, without clearing anything.
func (e *Engine) handleSubtotal() {
	e.closeChains()

	if e.gtPending {
		e.gtPending = false
		gt, flag := e.roundFlag(e.grandTotal)
		e.print(e.totalLine(gt, string(KeyGrandTotal), KeyGrandShowLine, flag))
		e.show(e.formatResult(gt))
		e.showResult(gt)
		e.emitStatus()
		return
	}

	acc, flag := e.roundFlag(e.accumulator)
	e.print(e.totalLine(acc, string(KeySubtotal), KeySubtotal, flag))
	e.show(e.formatResult(acc))
	e.resetInput()
	e.emitStatus()
}
