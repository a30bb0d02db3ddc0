package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print owned and shared companies every time they change",
	Long: `Print owned and shared companies every time they change, until interrupted.
Changes made by other recordsync processes against the same database are not observed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var mu sync.Mutex
		printer := func(w io.Writer, title string) func([][]mcompany.Company) {
			return func(sections [][]mcompany.Company) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(w, "== %s ==\n", title)
				for _, section := range sections {
					printCompanies(w, section)
				}
			}
		}

		out := cmd.OutOrStdout()
		companies := application.Companies(printer(out, "companies"))
		if err := companies.Load(ctx); err != nil {
			return err
		}
		shared := application.Shared(printer(out, "shared with me"))
		if err := shared.Load(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}
