// Command sheetsync processes workbooks locally: it lists sheets, exports
// them to JSON and extracts goal sheets without a server or a store.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/dataset"
	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/workbook"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetsync",
		Short:         "Extract records from .xlsb and .xlsx workbooks",
		SilenceUsage:  true,
	}
	root.AddCommand(newSheetsCmd(), newExportCmd(), newGoalsCmd(cfg))
	return root
}

func newSheetsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sheets <file>",
		Short: "List the sheets of a workbook",
		Long: `List the sheets of a workbook, one per line. Sheets whose name
contains "SQL" are hidden unless --all is given. Sheets the server would
store are followed by their bucket name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := openWorkbook(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()

			out := cmd.OutOrStdout()
			kind := dataset.Classify(filepath.Base(args[0]))
			for _, name := range extract.SheetNames(wb, !all) {
				if kind.Persists(name) {
					fmt.Fprintf(out, "%s\t%s\n", name, kind.Bucket(name))
					continue
				}
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include SQL sheets")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		outDir string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write every sheet to <base>_<sheet>.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("file not found: %s", path)
			}
			if outDir == "" {
				outDir = filepath.Join(filepath.Dir(path), "output")
			}

			res, err := core.ExportWorkbook(path, outDir, core.ExportOptions{Compact: !pretty})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, f := range res.Files {
				if f.Error != "" {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %s\n", f.Sheet, f.Error)
					continue
				}
				fmt.Fprintf(out, "OK    %s (%d records) -> %s\n", f.Sheet, f.Records, f.OutputPath)
			}
			slog.Info("export finished", "sheets", res.SheetsProcessed, "failed", failed, "output_dir", res.OutputDirectory)
			if failed > 0 {
				return fmt.Errorf("%d of %d sheets failed", failed, res.SheetsProcessed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default: <file dir>/output)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	return cmd
}

func newGoalsCmd(cfg *config.Config) *cobra.Command {
	var (
		sheet    string
		period   string
		scanRows int
		pretty   bool
	)
	cmd := &cobra.Command{
		Use:   "goals <file>",
		Short: "Extract a goal sheet as JSON",
		Long: `Extract a goal sheet: locate the "Cupos" header, map each metric
column to its canonical field and print the records with the column mapping.
Without --sheet every goal sheet in the workbook is extracted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := openWorkbook(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()

			sheets := []string{sheet}
			if sheet == "" {
				sheets = sheets[:0]
				for _, name := range extract.SheetNames(wb, true) {
					if dataset.IsGoalSheet(name) {
						sheets = append(sheets, name)
					}
				}
				if len(sheets) == 0 {
					return errors.New("no goal sheets found; pass --sheet")
				}
			}

			opts := extract.GoalOptions{Period: period, ScanRows: scanRows}
			results := make([]*extract.GoalSheet, 0, len(sheets))
			for _, name := range sheets {
				gs, err := extract.ReadGoalSheet(wb, name, opts)
				if err != nil {
					return err
				}
				results = append(results, gs)
			}

			if len(results) == 1 {
				return writeJSON(cmd.OutOrStdout(), results[0], pretty)
			}
			return writeJSON(cmd.OutOrStdout(), results, pretty)
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet to extract (default: every goal sheet)")
	cmd.Flags().StringVar(&period, "period", cfg.Goals.Period, "PERIODO value for every record")
	cmd.Flags().IntVar(&scanRows, "scan-rows", cfg.Goals.ScanRows, "Rows searched for the header")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	return cmd
}

func openWorkbook(path string) (workbook.Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return wb, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
