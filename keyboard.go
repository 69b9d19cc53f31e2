package main

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

// Callback data that is handled by the bot rather than the engine.
const (
	callbackUndo = "UNDO"
	callbackRedo = "REDO"
)

func keyButton(label string, k calc.Key) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, k.String())
}

var botKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		keyButton("TAX+", calc.KeyTaxAdd),
		keyButton("TAX-", calc.KeyTaxRemove),
		keyButton("COST", calc.KeyCost),
		keyButton("SELL", calc.KeySell),
		keyButton("MRG", calc.KeyMargin),
		keyButton("MKP", calc.KeyMarkup),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("RATE", calc.KeyRate),
		keyButton("K", calc.KeyConstant),
		keyButton("GT", calc.KeyGrandTotal),
		keyButton("Δ", calc.KeyDelta),
		keyButton("√", calc.KeySqrt),
		keyButton("xʸ", calc.KeyPower),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("MC", calc.KeyMemoryClear),
		keyButton("MR", calc.KeyMemoryRecall),
		keyButton("M-", calc.KeyMemorySub),
		keyButton("M+", calc.KeyMemoryAdd),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("AC", calc.KeyClearAll),
		keyButton("CE", calc.KeyClearEntry),
		keyButton("%", calc.KeyPercent),
		keyButton("÷", calc.KeyDiv),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("7", calc.Key7),
		keyButton("8", calc.Key8),
		keyButton("9", calc.Key9),
		keyButton("×", calc.KeyMul),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("4", calc.Key4),
		keyButton("5", calc.Key5),
		keyButton("6", calc.Key6),
		keyButton("-", calc.KeySub),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("1", calc.Key1),
		keyButton("2", calc.Key2),
		keyButton("3", calc.Key3),
		keyButton("+", calc.KeyAdd),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("0", calc.Key0),
		keyButton("00", calc.KeyDoubleZero),
		keyButton(".", calc.KeyDecimal),
		keyButton("±", calc.KeySign),
	),
	tgbotapi.NewInlineKeyboardRow(
		keyButton("⌫", calc.KeyBackspace),
		keyButton("S", calc.KeySubtotal),
		keyButton("T", calc.KeyTotal),
		keyButton("=", calc.KeyEquals),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↶ undo", callbackUndo),
		tgbotapi.NewInlineKeyboardButtonData("redo ↷", callbackRedo),
	),
)

// renderScreen is the keyboard message text: the display and the lit
// indicator lamps.
func renderScreen(e *calc.Engine) string {
	lines := []string{calc.FormatDisplay(e.Display())}

	status := e.Status()
	var lamps []string
	if status.Error {
		lamps = append(lamps, "E")
	}
	if status.Minus {
		lamps = append(lamps, "−")
	}
	if status.Acc1 {
		lamps = append(lamps, "ACC")
	}
	if status.GT {
		lamps = append(lamps, "GT")
	}
	if status.K != nil {
		lamps = append(lamps, "K="+calc.FormatNumber(*status.K, -1))
	}
	if mem := e.Memory(); mem.HasMemory {
		lamps = append(lamps, "M")
	}
	if len(lamps) != 0 {
		lines = append(lines, strings.Join(lamps, " · "))
	}
	return strings.Join(lines, "\n")
}

// tapeValue renders the number column of a tape line.
func tapeValue(entry calc.Entry) string {
	value := calc.FormatEntry(entry)
	if entry.PercentSuffix {
		value += "%"
	}
	if entry.LeadSymbol != "" {
		value = entry.LeadSymbol + " " + value
	}
	switch entry.Rounding {
	case calc.RoundedUp:
		value += " ↑"
	case calc.RoundedDown:
		value += " ↓"
	}
	return value
}

func renderTape(entries []calc.Entry) string {
	if len(entries) == 0 {
		return "Tape is empty."
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%18s %s", tapeValue(entry), entry.Symbol))
	}
	return strings.Join(lines, "\n")
}
