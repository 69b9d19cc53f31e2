package calc

import "fmt"

// ComputeSell returns the selling price that yields marginPct on cost.
func ComputeSell(cost, marginPct float64) (float64, error) {
	d := 1 - marginPct/100
	if d == 0 {
		return 0, fmt.Errorf("%w: margin of 100%%", ErrDivisionByZero)
	}
	return cost / d, nil
}

func ComputeCost(sell, marginPct float64) float64 {
	return sell * (1 - marginPct/100)
}

// ComputeMargin returns the margin as a percentage of the selling price.
func ComputeMargin(cost, sell float64) (float64, error) {
	if sell == 0 {
		return 0, fmt.Errorf("%w: zero selling price", ErrDivisionByZero)
	}
	return (sell - cost) / sell * 100, nil
}

// ComputeMarkup returns the markup as a percentage of the cost.
func ComputeMarkup(cost, sell float64) (float64, error) {
	if cost == 0 {
		return 0, fmt.Errorf("%w: zero cost", ErrDivisionByZero)
	}
	return (sell - cost) / cost * 100, nil
}

func ComputeSellFromMarkup(cost, markupPct float64) float64 {
	return cost * (1 + markupPct/100)
}

func ComputeCostFromMarkup(sell, markupPct float64) (float64, error) {
	d := 1 + markupPct/100
	if d == 0 {
		return 0, fmt.Errorf("%w: markup of -100%%", ErrDivisionByZero)
	}
	return sell / d, nil
}

func AddTax(amount, ratePct float64) float64 {
	return amount * (1 + ratePct/100)
}

// RemoveTax extracts the net amount from a tax inclusive one.
func RemoveTax(amount, ratePct float64) (float64, error) {
	d := 1 + ratePct/100
	if d == 0 {
		return 0, fmt.Errorf("%w: tax rate of -100%%", ErrDivisionByZero)
	}
	return amount / d, nil
}
