package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/internal/pipeline"
)

var (
	reportHint  string
	reportOut   string
	reportQuiet bool
)

var reportCmd = &cobra.Command{
	Use:   "report <place>",
	Short: "Generate a district report for a place",
	Long:  "Resolves the place, aggregates indicators, synthesizes the narrative, and prints the report as JSON. Ambiguous short names print a candidate list instead; re-run with a more specific query.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		hint, err := parseHint(reportHint)
		if err != nil {
			return err
		}
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []pipeline.RunOption
		if !reportQuiet {
			opts = append(opts, pipeline.WithObserver(printProgress))
		}

		rep, dis, err := env.Pipeline.GenerateReport(ctx, query, hint, opts...)
		if !reportQuiet {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}
		if dis != nil {
			return printDisambiguation(dis)
		}

		out := os.Stdout
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", reportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(rep); err != nil {
			return eris.Wrap(err, "encode report")
		}
		return nil
	},
}

func parseHint(s string) (model.PrecisionHint, error) {
	switch model.PrecisionHint(s) {
	case "", model.HintAuto:
		return model.HintAuto, nil
	case model.HintExact:
		return model.HintExact, nil
	case model.HintDistrict:
		return model.HintDistrict, nil
	default:
		return "", eris.Errorf("invalid hint %q (want auto, exact, or district)", s)
	}
}

func printProgress(ev model.ProgressEvent) {
	fmt.Fprintf(os.Stderr, "\r%3.0f%% [%-10s] %-24s (%d/%d)",
		ev.Percent, ev.Stage, ev.Task, ev.Completed, ev.Total)
}

func printDisambiguation(dis *model.Disambiguation) error {
	fmt.Fprintf(os.Stderr, "%q matches places in %d provinces; specify one:\n", dis.Query, len(dis.Candidates))
	for _, c := range dis.Candidates {
		fmt.Fprintf(os.Stderr, "  %s %s\n", c.Province, c.Name)
	}
	return eris.Errorf("ambiguous place %q", dis.Query)
}

func init() {
	reportCmd.Flags().StringVar(&reportHint, "hint", "auto", "precision hint: auto, exact, or district")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write report JSON to file instead of stdout")
	reportCmd.Flags().BoolVarP(&reportQuiet, "quiet", "q", false, "suppress the progress indicator")
	rootCmd.AddCommand(reportCmd)
}
