package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/beanraft/district-cli/internal/export"
	"github.com/beanraft/district-cli/pkg/notion"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored report",
	Long:  "Exports the report of a completed run as an xlsx workbook for field teams or upserts it into the Notion report database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "export %s", args[0])
		}
		if run.Report == nil {
			return eris.Errorf("run %s has no report (status %s)", run.ID, run.Status)
		}

		switch exportFormat {
		case "xlsx":
			out := exportOut
			if out == "" {
				out = run.ID + ".xlsx"
			}
			if err := export.WriteXLSX(run.Report, out); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", out)
			return nil
		case "notion":
			if cfg.Notion.Token == "" || cfg.Notion.ReportDB == "" {
				return eris.New("notion.token and notion.report_db are required for notion export")
			}
			client := notion.NewClient(cfg.Notion.Token)
			pageID, created, err := export.UpsertReportPage(ctx, client, cfg.Notion.ReportDB, run.Report)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(os.Stderr, "%s notion page %s\n", verb, pageID)
			return nil
		default:
			return eris.Errorf("unsupported format %q (want xlsx or notion)", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "export format: xlsx or notion")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path for xlsx (default <run-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
