package calc

import "math"

// handleBusinessKey stores the entered value for COST, SELL, MARGIN and
// MARKUP, or computes it from the stored complement when pressed with
// nothing entered. TAX+ and TAX- always compute.
func (e *Engine) handleBusinessKey(k Key) error {
	blank := !e.entered()
	v, ok := parseInput(e.input)
	if !ok || blank {
		if base, found := e.unaryBase(); found {
			v, ok = base, true
		}
	}
	if !ok {
		return nil
	}
	v = math.Abs(v)
	b := &e.business

	var (
		res float64
		err error
	)
	switch k {
	case KeyMargin, KeyMarkup:
		return e.handlePricingKey(k, v, blank)
	case KeyCost:
		if !blank || b.sell == nil {
			b.cost = floatPtr(v)
			e.printStored(k, v, false)
			return nil
		}
		if b.mode == PricingMarkup {
			res, err = ComputeCostFromMarkup(*b.sell, b.markup)
		} else {
			res = ComputeCost(*b.sell, b.margin)
		}
	case KeySell:
		if !blank || b.cost == nil {
			b.sell = floatPtr(v)
			e.printStored(k, v, false)
			return nil
		}
		if b.mode == PricingMarkup {
			res = ComputeSellFromMarkup(*b.cost, b.markup)
		} else {
			res, err = ComputeSell(*b.cost, b.margin)
		}
	case KeyTaxAdd:
		res = AddTax(v, e.taxRate)
	case KeyTaxRemove:
		res, err = RemoveTax(v, e.taxRate)
	}
	if err != nil {
		return err
	}

	res, flag := e.roundFlag(res)
	line := e.totalLine(res, string(k), k, flag)
	switch k {
	case KeyCost:
		b.cost = floatPtr(res)
		line.LeadSymbol = string(KeyEquals)
	case KeySell:
		b.sell = floatPtr(res)
		line.LeadSymbol = string(KeyEquals)
	}
	e.print(line)
	e.show(e.formatResult(res))
	e.showResult(res)
	e.emitStatus()
	return nil
}

func (e *Engine) handlePricingKey(k Key, v float64, blank bool) error {
	b := &e.business
	mode := PricingMargin
	if k == KeyMarkup {
		mode = PricingMarkup
	}

	if !blank || b.cost == nil || b.sell == nil {
		b.mode = mode
		if mode == PricingMarkup {
			b.markup = v
		} else {
			b.margin = v
		}
		e.printStored(k, v, true)
		return nil
	}

	var (
		pct float64
		err error
	)
	if mode == PricingMarkup {
		pct, err = ComputeMarkup(*b.cost, *b.sell)
	} else {
		pct, err = ComputeMargin(*b.cost, *b.sell)
	}
	if err != nil {
		return err
	}
	pct = e.round(pct)
	b.mode = mode
	if mode == PricingMarkup {
		b.markup = pct
	} else {
		b.margin = pct
	}

	line := e.inputLine(pct, string(k), k)
	line.LeadSymbol = string(KeyEquals)
	line.PercentSuffix = true
	e.print(line)
	e.show(formatOperand(pct))
	e.showResult(pct)
	e.emitStatus()
	return nil
}

func (e *Engine) printStored(k Key, v float64, percent bool) {
	line := e.inputLine(v, string(k), k)
	line.PercentSuffix = percent
	e.print(line)
	e.show(formatOperand(v))
	e.resetInput()
	e.emitStatus()
}
