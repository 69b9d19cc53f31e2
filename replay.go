package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

// snapshotFormat picks "json" or "yaml" from format, or from the file
// extension when format is empty.
func snapshotFormat(path, format string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			format = "json"
		default:
			format = "yaml"
		}
	}
	switch format {
	case "json", "yaml":
		return format, nil
	}
	return "", fmt.Errorf("unsupported snapshot format %q", format)
}

func readSnapshotFile(path, format string) (calc.Snapshot, error) {
	var snap calc.Snapshot
	format, err := snapshotFormat(path, format)
	if err != nil {
		return snap, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if format == "json" {
		err = json.Unmarshal(data, &snap)
	} else {
		err = yaml.Unmarshal(data, &snap)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if snap.Settings == (calc.Settings{}) {
		snap.Settings = calc.DefaultSettings()
	}
	return snap, nil
}

func writeSnapshotFile(path, format string, snap calc.Snapshot) error {
	format, err := snapshotFormat(path, format)
	if err != nil {
		return err
	}

	var data []byte
	if format == "json" {
		data, err = json.MarshalIndent(snap, "", "  ")
	} else {
		data, err = yaml.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// replaySnapshot rebuilds an engine from snap and reports its state.
func replaySnapshot(w io.Writer, snap calc.Snapshot) error {
	engine := calc.New()
	if err := engine.Restore(snap); err != nil {
		return fmt.Errorf("failed to replay tape: %w", err)
	}

	fmt.Fprintf(w, "display:     %s\n", calc.FormatDisplay(engine.Display()))
	fmt.Fprintf(w, "accumulator: %s\n", strconv.FormatFloat(engine.Accumulator(), 'f', -1, 64))
	fmt.Fprintf(w, "grand total: %s\n", strconv.FormatFloat(engine.GrandTotal(), 'f', -1, 64))
	return writeTapeTable(w, engine.Entries())
}

var replayFlags struct {
	file   string
	format string
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a tape snapshot file and print the regenerated tape.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := readSnapshotFile(replayFlags.file, replayFlags.format)
		if err != nil {
			return err
		}
		return replaySnapshot(cmd.OutOrStdout(), snap)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFlags.file, "file", "", "snapshot file (yaml or json)")
	replayCmd.Flags().StringVar(&replayFlags.format, "format", "", "json or yaml; defaults to the file extension")
	_ = replayCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(replayCmd)
}
