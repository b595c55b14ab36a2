package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/source"
)

// errRejected marks a run that finished but rejected rows under --strict.
var errRejected = errors.New("file has rejected rows")

func exitCode(err error) int {
	if errors.Is(err, errRejected) {
		return 2
	}
	return 1
}

var (
	configKey string
	errorsOut string
	maxErrors int
	strict    bool
	noMapping bool
	threshold float64
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List registered upload configs",
	Args:  cobra.NoArgs,
	RunE:  runSchemas,
}

var validateCmd = &cobra.Command{
	Use:   "validate <config|file.yaml> <file.csv>",
	Short: "Validate a CSV file and print its upload summary",
	Long: `Runs the file through the same mapping, validation and duplicate
detection as the upload server. Exits 2 with --strict when any row was
rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

var mapCmd = &cobra.Command{
	Use:   "map <config|file.yaml> <file.csv>",
	Short: "Show how the file's headers map to config columns",
	Args:  cobra.ExactArgs(2),
	RunE:  runMap,
}

var templateCmd = &cobra.Command{
	Use:   "template <config|file.yaml>",
	Short: "Write a header-only CSV template to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplate,
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, mapCmd, templateCmd} {
		c.Flags().StringVar(&configKey, "key", "", "config key when the YAML file holds several")
	}
	for _, c := range []*cobra.Command{validateCmd, mapCmd} {
		c.Flags().BoolVar(&noMapping, "no-mapping", false, "match headers exactly")
		c.Flags().Float64Var(&threshold, "threshold", 0, "override the mapping confidence threshold")
	}
	validateCmd.Flags().StringVar(&errorsOut, "errors-out", "", "write every field error to this CSV file")
	validateCmd.Flags().IntVar(&maxErrors, "max-errors", 20, "errors to print (0 prints none)")
	validateCmd.Flags().BoolVar(&strict, "strict", false, "exit 2 when any row is rejected")
}

func runSchemas(cmd *cobra.Command, args []string) error {
	all := core.All()
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), all)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tCOLUMNS\tKEYS\tMAPPING")
	for _, c := range all {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%t\n", c.Key, c.Label, len(c.Columns), c.KeyColumns, c.EnableMapping)
	}
	return tw.Flush()
}

// checkResult is the JSON output of validate.
type checkResult struct {
	File    core.BulkUploadFile  `json:"file"`
	Summary *core.UploadSummary  `json:"summary,omitempty"`
	Mapping []core.ColumnMapping `json:"mapping"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	res, err := check(cmd.Context(), cfg, args[1])
	if err != nil {
		return err
	}

	if errorsOut != "" {
		if err := writeErrorsFile(errorsOut, res.Summary.Errors); err != nil {
			return err
		}
		logger.Info("errors written", "path", errorsOut, "count", len(res.Summary.Errors))
	}

	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), cfg, res)
	}

	if strict && res.Summary.SuccessCount < res.Summary.TotalRows {
		return fmt.Errorf("%w: %d of %d kept", errRejected, res.Summary.SuccessCount, res.Summary.TotalRows)
	}
	return nil
}

// check runs one file through a full upload lifecycle.
func check(ctx context.Context, cfg core.UploadConfig, path string) (checkResult, error) {
	st, err := os.Stat(path)
	if err != nil {
		return checkResult{}, err
	}

	var headers []string
	read := source.Uploader(source.OptionsFor(cfg))
	orch, err := core.NewOrchestrator(cfg,
		core.WithLogger(logger),
		core.WithUploader(func(ctx context.Context, f *core.BulkUploadFile, report core.ReportFunc) ([]core.Record, error) {
			records, err := read(ctx, f, report)
			headers = core.HeadersOf(records)
			return records, err
		}),
		core.WithProgress(func(p core.UploadProgress) {
			logger.Debug("progress", "status", p.Status, "progress", p.Progress, "rows", p.Rows)
		}),
	)
	if err != nil {
		return checkResult{}, err
	}

	name := filepath.Base(path)
	f := orch.NewFile(name, st.Size(), mime.TypeByExtension(filepath.Ext(name)), source.Path(path))
	summary, err := orch.Process(ctx, f)
	if err != nil {
		return checkResult{}, fmt.Errorf("%s: %w", name, err)
	}

	snap, _ := orch.File(f.ID)
	snap.Data = nil
	snap.Errors = nil
	return checkResult{File: snap, Summary: summary, Mapping: orch.Mapping(headers)}, nil
}

func printSummary(w io.Writer, cfg core.UploadConfig, res checkResult) {
	s := res.Summary
	fmt.Fprintf(w, "%s (%s): %s\n", res.File.Name, cfg.Key, res.File.Status)
	fmt.Fprintf(w, "  rows:       %d\n", s.TotalRows)
	fmt.Fprintf(w, "  kept:       %d\n", s.SuccessCount)
	fmt.Fprintf(w, "  errors:     %d\n", s.ErrorCount)
	fmt.Fprintf(w, "  duplicates: %d\n", s.DuplicateCount)

	if maxErrors <= 0 || len(s.Errors) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tLINE\tCOLUMN\tERROR\tVALUE")
	for i, e := range s.Errors {
		if i == maxErrors {
			break
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%q\n", e.Row, e.Line, e.Column, e.Error, e.Value.Text())
	}
	tw.Flush()
	if n := len(s.Errors) - maxErrors; n > 0 {
		fmt.Fprintf(w, "... %d more\n", n)
	}
}

func writeErrorsFile(path string, errs []core.UploadError) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := source.WriteErrors(f, errs); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// mapResult is the JSON output of map.
type mapResult struct {
	Headers    []string                `json:"headers"`
	Mapping    []core.ColumnMapping    `json:"mapping"`
	Candidates []core.MappingCandidate `json:"candidates,omitempty"`
	Unmapped   []string                `json:"unmappedColumns"`
}

func runMap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	orch, err := core.NewOrchestrator(cfg, core.WithLogger(logger))
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := source.Read(cmd.Context(), f, 0, source.OptionsFor(cfg), nil)
	if err != nil {
		return err
	}

	headers := core.HeadersOf(records)
	res := mapResult{Headers: headers, Mapping: orch.Mapping(headers)}
	if cfg.EnableMapping {
		res.Candidates = orch.Mapper().Candidates(headers, cfg.Columns)
	}
	res.Unmapped = unmapped(cfg, res.Mapping)

	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTARGET\tCONFIDENCE")
	for _, m := range res.Mapping {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\n", m.SourceColumn, m.TargetColumn, m.Confidence)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(res.Unmapped) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nunmapped columns: %v\n", res.Unmapped)
	}
	return nil
}

// unmapped lists config columns no source header maps to.
func unmapped(cfg core.UploadConfig, mapping []core.ColumnMapping) []string {
	hit := make(map[string]bool, len(mapping))
	for _, m := range mapping {
		hit[m.TargetColumn] = true
	}
	out := []string{}
	for _, c := range cfg.Columns {
		if !hit[c.FieldName] {
			out = append(out, c.FieldName)
		}
	}
	return out
}

func runTemplate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(args[0], configKey)
	if err != nil {
		return err
	}
	return source.WriteTemplate(cmd.OutOrStdout(), cfg)
}

// loadConfig resolves the config and applies mapping flags.
func loadConfig(ref string) (core.UploadConfig, error) {
	cfg, err := resolveConfig(ref, configKey)
	if err != nil {
		return cfg, err
	}
	if noMapping {
		cfg.EnableMapping = false
	}
	if threshold > 0 {
		cfg.MappingThreshold = threshold
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
