package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/beanraft/district-cli/internal/fetcher"
	"github.com/beanraft/district-cli/internal/refdata"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage the administrative-division code table",
	Long:  "The division table ships embedded in the binary; sync downloads a fresh published snapshot so restarts pick it up.",
}

// -- refdata status --

var refdataStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the loaded division table version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := loadDivisions()
		if err != nil {
			return err
		}
		source := "embedded"
		if cfg.Refdata.Snapshot != "" {
			source = cfg.Refdata.Snapshot
		}
		fmt.Printf("source:    %s\nversion:   %s\ndivisions: %d\n", source, table.Version(), table.Len())
		return nil
	},
}

// -- refdata sync --

var refdataSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download a fresh division snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		dest := cfg.Refdata.Snapshot
		if dest == "" {
			return eris.New("refdata.snapshot path is required for sync")
		}

		var (
			f   fetcher.Fetcher
			url string
		)
		if cfg.Refdata.SyncURL != "" {
			f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent: "district-cli refdata sync",
				Timeout:   2 * time.Minute,
			})
			url = cfg.Refdata.SyncURL
		} else {
			f = fetcher.NewFTPFetcher(fetcher.FTPOptions{
				User:     cfg.Refdata.FTPUser,
				Password: cfg.Refdata.FTPPassword,
			})
			url = "ftp://" + cfg.Refdata.FTPHost + "/" + strings.TrimPrefix(cfg.Refdata.FTPPath, "/")
		}

		table, err := refdata.Sync(ctx, f, url, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "synced version %s (%d divisions) to %s\n", table.Version(), table.Len(), dest)
		return nil
	},
}

func init() {
	refdataCmd.AddCommand(refdataStatusCmd)
	refdataCmd.AddCommand(refdataSyncCmd)
	rootCmd.AddCommand(refdataCmd)
}
