package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/server"
	"github.com/conneroisu/devlens/internal/store"
	"github.com/conneroisu/devlens/internal/tui"
)

var editCmd = &cobra.Command{
	Use:     "edit <data-path>",
	Aliases: []string{"e"},
	Short:   "Edit a component's data file in the terminal",
	Long: `Open the JSON behind a component in a terminal editor. The same rules as
the browser overlay apply: invalid JSON cannot be saved and unsaved edits need
confirmation before they are discarded.

The data is read and written through the configured store, or through a
running devlens server when editor.base_url is set.

Keys:
  ctrl+s  Save          ctrl+f  Format
  esc     Close         ctrl+c  Quit without saving

Examples:
  devlens edit hero.json --site example.com
  devlens edit "features.json[2]" --site example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var editSite string

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().StringVar(&editSite, "site", "", "Site whose data is edited")
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	site, err := siteFor(cfg, editSite)
	if err != nil {
		return err
	}
	if _, err := store.ParseDataPath(args[0]); err != nil {
		return err
	}

	var client editor.DataClient
	if cfg.Editor.BaseURL != "" {
		client = editor.NewHTTPClient(cfg.Editor.BaseURL)
	} else {
		st, history, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer history.Close()
		client = &server.StoreClient{Store: st, Pages: newPages(cfg, logger)}
	}

	session := editor.NewSession(client, editor.Options{}, logger)
	target := editor.Target{Name: args[0], DataPath: args[0], Site: site}

	saved, err := tui.Run(cmd.Context(), session, target)
	if err != nil {
		return err
	}
	if saved {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s for %s\n", args[0], site)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes saved")
	}
	return nil
}
