package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/aggregate"
	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/normalize"
	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/scoring"
	"github.com/matthewbaird/compliance/internal/types"
)

type options struct {
	catalogPath string
	output      string
	strict      bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "compliancectl",
		Short:         "Score defect records against a defect catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.catalogPath, "catalog", "c", "catalog.cue", "defect catalog file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	root.PersistentFlags().BoolVar(&opts.strict, "strict", false, "fail when any record is malformed")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log catalog misses")

	root.AddCommand(
		newScoreCmd(opts),
		newUnitScoreCmd(opts),
		newPrioritiesCmd(opts),
		newValidateCatalogCmd(opts),
	)
	return root
}

func newScoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score RECORDS.json",
		Short: "Compute the property score of every property in a record file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			scores, err := in.engine.ScorePortfolio(cmd.Context(), aggregate.ByProperty(in.issues), in.catalog)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), scores)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROPERTY\tSCORE\tDEFECTS\tUNIQUE\tDEDUCTIONS")
			for _, id := range sortedKeys(scores) {
				s := scores[id]
				fmt.Fprintf(tw, "%s\t%.1f\t%d\t%d\t%.1f\n", id, s.TotalScore, s.DefectCount, s.UniqueDefectCount, s.TotalDeductions)
			}
			return tw.Flush()
		},
	}
}

// unitRow is a unit score qualified by its property. Unit ids are only
// unique within a property.
type unitRow struct {
	PropertyID string `json:"property_id"`
	types.UnitPerformanceScore
}

func newUnitScoreCmd(opts *options) *cobra.Command {
	var unitID, propertyID string
	cmd := &cobra.Command{
		Use:   "unit-score RECORDS.json",
		Short: "Compute unit performance scores per property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			byProperty := aggregate.ByProperty(in.issues)
			if propertyID != "" {
				byProperty = map[string][]types.CorrectableIssue{propertyID: byProperty[propertyID]}
			}
			rows := []unitRow{}
			for _, pid := range sortedKeys(byProperty) {
				var units []types.UnitPerformanceScore
				if unitID != "" {
					units = []types.UnitPerformanceScore{in.engine.ScoreUnit(byProperty[pid], unitID, in.catalog)}
				} else {
					units = in.engine.ScoreUnits(byProperty[pid], in.catalog)
				}
				for _, u := range units {
					rows = append(rows, unitRow{PropertyID: pid, UnitPerformanceScore: u})
				}
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROPERTY\tUNIT\tSCORE\tAUTO-FAIL")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%.1f\t%t\n", r.PropertyID, r.UnitID, r.Score, r.IsAutoFail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "score only this unit")
	cmd.Flags().StringVar(&propertyID, "property", "", "score only units of this property")
	return cmd
}

func newPrioritiesCmd(opts *options) *cobra.Command {
	var ranked bool
	cmd := &cobra.Command{
		Use:   "priorities RECORDS.json",
		Short: "Classify records into the twelve priority tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			if ranked {
				list := priority.Rank(in.issues)
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tTIER\tISSUE\tTITLE")
				for _, r := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Tier.Rank, r.Tier.Name, r.Issue.ID, r.Issue.Title)
				}
				return tw.Flush()
			}
			tiers := priority.Classify(in.issues)
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), tiers)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tTIER\tCOUNT")
			for _, t := range tiers {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", t.Rank, t.Name, t.Count)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&ranked, "ranked", false, "list issues in priority order instead of tier counts")
	return cmd
}

func newValidateCatalogCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-catalog [FILE.cue]",
		Short: "Check a defect catalog against the catalog schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.catalogPath
			if len(args) == 1 {
				path = args[0]
			}
			c, err := catalog.LoadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s, %d categories\n", path, c.Version(), len(c.Categories()))
			return nil
		},
	}
}

type input struct {
	catalog *catalog.Catalog
	engine  *scoring.Engine
	issues  []types.CorrectableIssue
}

// load reads the catalog and normalizes the record file. Malformed records
// are reported on stderr and skipped unless --strict is set.
func (o *options) load(cmd *cobra.Command, path string) (*input, error) {
	if o.output != "text" && o.output != "json" {
		return nil, fmt.Errorf("unknown output format %q", o.output)
	}
	c, err := catalog.LoadFile(o.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	issues, errs := normalize.Normalize(records)
	for _, e := range errs {
		fmt.Fprintln(cmd.ErrOrStderr(), "rejected:", e)
	}
	if o.strict && len(errs) > 0 {
		return nil, fmt.Errorf("%d of %d records rejected", len(errs), len(records))
	}

	log := zap.NewNop()
	if o.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	return &input{catalog: c, engine: scoring.New(log, nil), issues: issues}, nil
}

func readRecords(path string) ([]normalize.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var records []normalize.SourceRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return records, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
