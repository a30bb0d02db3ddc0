package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/pkg/interactor"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
)

var (
	companyNameQuery string
	companyWhere     string
)

func init() {
	rootCmd.AddCommand(companiesCmd)

	companiesListCmd.Flags().StringVar(&companyNameQuery, "name", "", "fuzzy match on the company name")
	companiesListCmd.Flags().StringVar(&companyWhere, "where", "", `filter expression over id, partition and name, e.g. 'name != nil'`)

	companiesCmd.AddCommand(companiesListCmd)
	companiesCmd.AddCommand(companiesAddCmd)
	companiesCmd.AddCommand(companiesRmCmd)
	companiesCmd.AddCommand(companiesRenameCmd)
	companiesCmd.AddCommand(companiesClearCmd)
}

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Manage your own companies",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your companies sorted by name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := livequery.Query{Filter: livequery.Filter{NameQuery: companyNameQuery, Where: companyWhere}}
		companies, err := loadCompanies(cmd.Context(), interactor.WithQuery(q))
		if err != nil {
			return err
		}
		printCompanies(cmd.OutOrStdout(), companies.Entities())
		return nil
	},
}

var companiesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := application.Companies(nil).Insert(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var companiesRmCmd = &cobra.Command{
	Use:   "rm [company-id]",
	Short: "Delete a company and its employees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		companies, err := loadCompanies(cmd.Context())
		if err != nil {
			return err
		}
		company, err := findCompany(companies, id)
		if err != nil {
			return err
		}
		return companies.Delete(cmd.Context(), company)
	},
}

var companiesRenameCmd = &cobra.Command{
	Use:   "rename [company-id] [name]",
	Short: "Rename a company; without a name the name is cleared",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		companies, err := loadCompanies(cmd.Context())
		if err != nil {
			return err
		}
		company, err := findCompany(companies, id)
		if err != nil {
			return err
		}
		var name *string
		if len(args) == 2 {
			name = &args[1]
		}
		return companies.Rename(cmd.Context(), company, name)
	},
}

var companiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every company you own",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.Companies(nil).DeleteAll(cmd.Context())
	},
}
