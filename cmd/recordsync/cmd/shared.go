package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/remotesync/memremote"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

func init() {
	rootCmd.AddCommand(sharedCmd)

	sharedCmd.AddCommand(sharedListCmd)
	sharedCmd.AddCommand(sharedRmCmd)
	sharedCmd.AddCommand(sharedAcceptCmd)
}

var sharedCmd = &cobra.Command{
	Use:   "shared",
	Short: "Companies other users shared with you",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var sharedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shared companies, one section per shared partition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shared := application.Shared(nil)
		if err := shared.Load(cmd.Context()); err != nil {
			return err
		}
		partitions := shared.Partitions()
		for i, section := range shared.Entities() {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n", partitions[i])
			printCompanies(cmd.OutOrStdout(), section)
		}
		return nil
	},
}

var sharedRmCmd = &cobra.Command{
	Use:   "rm [partition]",
	Short: "Leave a shared partition and drop its local copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.Sharing.DeleteZone(cmd.Context(), args[0])
	},
}

// acceptDoc is the YAML form of a share invitation.
type acceptDoc struct {
	Share     mshare.Share `yaml:"share"`
	Companies []struct {
		ID   string  `yaml:"id"`
		Name *string `yaml:"name"`
	} `yaml:"companies"`
	Employees []struct {
		ID        string  `yaml:"id"`
		CompanyID string  `yaml:"company_id"`
		Name      *string `yaml:"name"`
	} `yaml:"employees"`
}

var sharedAcceptCmd = &cobra.Command{
	Use:   "accept [invitation.yaml]",
	Short: "Accept a share invitation and synchronize it into the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read invitation: %w", err)
		}
		var doc acceptDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode invitation: %w", err)
		}
		if doc.Share.Partition == "" {
			doc.Share.Partition = "share-" + doc.Share.ID
		}
		if err := store.ValidatePartition(doc.Share.Partition); err != nil {
			return err
		}

		in := memremote.Incoming{Share: doc.Share}
		for _, c := range doc.Companies {
			id, err := parseID(c.ID)
			if err != nil {
				return err
			}
			in.Companies = append(in.Companies, store.CompanyRecord{ID: id, Partition: doc.Share.Partition, Name: c.Name})
		}
		for _, e := range doc.Employees {
			id, err := parseID(e.ID)
			if err != nil {
				return err
			}
			companyID, err := parseID(e.CompanyID)
			if err != nil {
				return err
			}
			in.Employees = append(in.Employees, store.EmployeeRecord{ID: id, CompanyID: companyID, Partition: doc.Share.Partition, Name: e.Name})
		}

		application.Remote.Accept(in)
		if err := application.Sharing.Synchronize(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "accepted %s into partition %s\n", doc.Share.ID, doc.Share.Partition)
		return nil
	},
}
