package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSyncCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change user settings",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var settingsSyncCmd = &cobra.Command{
	Use:       "sync [on|off]",
	Short:     "Show or toggle syncing; turning it off forgets the local sync position",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return errmap.New(errmap.CodeInvalidInput, fmt.Sprintf("expected on or off, got %q", args[0]), nil)
			}
			if err := settingsMgr.SetSyncEnabled(enabled); err != nil {
				return err
			}
		}
		state := "off"
		if settingsMgr.SyncEnabled() {
			state = "on"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync is %s (%s)\n", state, settingsMgr.Path())
		return nil
	},
}
