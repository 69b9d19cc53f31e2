package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

// REPL drives an engine from whitespace separated key names read line by
// line. Lines starting with ':' are commands.
type REPL struct {
	engine *calc.Engine
	in     io.Reader
	out    io.Writer
}

func NewREPL(engine *calc.Engine, in io.Reader, out io.Writer) *REPL {
	return &REPL{engine: engine, in: in, out: out}
}

const replHelp = `keys: digits, 00, 000, . + - x ÷ % ^ Δ √ = T S GT RATE K TAX+ TAX- COST SELL MARGIN MARKUP
      AC CE BS ± M+ M- MR MC; numbers like 12.5 are typed digit by digit
commands: :tape :undo :redo :edit <index> <value> :export <file> :help :quit`

func (r *REPL) Run() error {
	scanner := bufio.NewScanner(r.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			quit, err := r.command(line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		for _, token := range strings.Fields(line) {
			if err := r.press(token); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
				break
			}
		}
		fmt.Fprintln(r.out, renderScreen(r.engine))
	}
	return scanner.Err()
}

// press types token. A key name is pressed as is; a plain number is
// typed digit by digit.
func (r *REPL) press(token string) error {
	keys, err := tokenKeys(token)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := r.engine.PressKey(k); err != nil {
			return err
		}
	}
	return nil
}

func tokenKeys(token string) ([]calc.Key, error) {
	if k, err := calc.ParseKey(token); err == nil {
		return []calc.Key{k}, nil
	}
	if _, err := strconv.ParseFloat(token, 64); err != nil || strings.ContainsAny(token, "+-eE") {
		return nil, fmt.Errorf("%w: key %q", calc.ErrUnsupported, token)
	}

	keys := make([]calc.Key, 0, len(token))
	for _, c := range token {
		k, err := calc.ParseKey(string(c))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (r *REPL) command(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":quit", ":q":
		return true, nil
	case ":help":
		fmt.Fprintln(r.out, replHelp)
	case ":tape":
		return false, writeTapeTable(r.out, r.engine.Entries())
	case ":undo":
		if !r.engine.Undo() {
			fmt.Fprintln(r.out, "nothing to undo")
			return false, nil
		}
		fmt.Fprintln(r.out, renderScreen(r.engine))
	case ":redo":
		if !r.engine.Redo() {
			fmt.Fprintln(r.out, "nothing to redo")
			return false, nil
		}
		fmt.Fprintln(r.out, renderScreen(r.engine))
	case ":edit":
		index, value, err := parseEdit(arg)
		if err != nil {
			return false, fmt.Errorf("usage: :edit <index> <value>: %w", err)
		}
		if err := r.engine.EditEntry(index, value); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, renderScreen(r.engine))
	case ":export":
		if arg == "" {
			return false, fmt.Errorf("usage: :export <file>")
		}
		if err := writeSnapshotFile(arg, "", r.engine.Snapshot()); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "exported %d lines to %s\n", len(r.engine.Entries()), arg)
	default:
		return false, fmt.Errorf("unknown command %q, try :help", name)
	}
	return false, nil
}

// parseEdit reads the "<index> <value>" argument of a tape edit. The index
// is the one :tape and /tape print.
func parseEdit(arg string) (int, float64, error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected 2 arguments, got %d", len(fields))
	}
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid index %q", fields[0])
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(fields[1], ",", "."), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, 0, fmt.Errorf("invalid value %q", fields[1])
	}
	return index, value, nil
}

// writeTapeTable renders the tape as a table.
func writeTapeTable(w io.Writer, entries []calc.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "tape is empty")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Value", "Symbol", "Key")
	for i, entry := range entries {
		row := []string{strconv.Itoa(i), tapeValue(entry), entry.Symbol, entry.Key.String()}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Type keys into a calculator on the terminal.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := calc.New(config.Engine.Options()...)
		fmt.Fprintln(cmd.OutOrStdout(), replHelp)
		return NewREPL(engine, os.Stdin, cmd.OutOrStdout()).Run()
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
