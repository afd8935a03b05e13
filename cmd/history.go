package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/devlens/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history [data-path]",
	Short: "Show recorded data edits",
	Long: `List the revisions recorded for a site's data files, newest first.
Without a data path every file of the site is listed.

Examples:
  devlens history --site example.com
  devlens history hero.json --site example.com -n 5 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyFlags *OutputFlags
	historySite  string
	historyLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyFlags = AddOutputFlags(historyCmd)
	historyCmd.Flags().StringVar(&historySite, "site", "", "Site whose history is listed")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of revisions")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := historyFlags.Validate(); err != nil {
		return err
	}
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", historyLimit)
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	site, err := siteFor(cfg, historySite)
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	revisions, err := history.List(cmd.Context(), site, path, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if revisions == nil {
		revisions = []store.Revision{}
	}

	out := cmd.OutOrStdout()
	switch historyFlags.Format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(revisions)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(revisions)
	default:
		return historyTable(out, revisions)
	}
}

func historyTable(w io.Writer, revisions []store.Revision) error {
	if len(revisions) == 0 {
		fmt.Fprintln(w, "No revisions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tPATH\tBEFORE\tAFTER")
	for _, r := range revisions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d B\t%d B\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Path, len(r.Before), len(r.After))
	}
	return tw.Flush()
}
