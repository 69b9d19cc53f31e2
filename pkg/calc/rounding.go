package calc

import (
	"math"
	"strconv"
)

// round15 removes binary noise by keeping 15 significant digits.
func round15(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 15, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// ApplyRounding rounds v to the given number of decimals using mode.
// Non-finite values are returned unchanged.
func ApplyRounding(v float64, mode RoundingMode, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow(10, float64(decimals))
	scaled := round15(v * factor)

	var r float64
	switch mode {
	case RoundTruncate:
		r = math.Trunc(scaled)
	case RoundUp:
		r = math.Ceil(scaled)
	case RoundNearest5:
		nickels := math.Round(round15(v / 0.05))
		return ApplyRounding(round15(nickels*0.05), RoundNone, decimals)
	default:
		r = math.Round(scaled)
	}
	return round15(r / factor)
}

func (e *Engine) round(v float64) float64 {
	if e.settings.Float {
		return round15(v)
	}
	return ApplyRounding(v, e.settings.RoundingMode, e.settings.Decimals)
}

// roundFlag rounds v and reports which way it moved.
func (e *Engine) roundFlag(v float64) (float64, RoundingFlag) {
	r := e.round(v)
	switch {
	case math.IsNaN(r) || r == round15(v):
		return r, RoundedNone
	case r > v:
		return r, RoundedUp
	default:
		return r, RoundedDown
	}
}

func (e *Engine) formatResult(v float64) string {
	if e.settings.Float {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', e.settings.Decimals, 64)
}

func formatOperand(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
