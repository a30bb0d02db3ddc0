package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	outputFile string
	format     string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&outputFile, "output", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
}

type exportEmployee struct {
	ID       string  `json:"id" yaml:"id"`
	Name     *string `json:"name" yaml:"name"`
	HasPhoto bool    `json:"has_photo" yaml:"has_photo"`
}

type exportCompany struct {
	ID        string           `json:"id" yaml:"id"`
	Name      *string          `json:"name" yaml:"name"`
	Sharing   string           `json:"sharing" yaml:"sharing"`
	Employees []exportEmployee `json:"employees" yaml:"employees"`
}

type exportPartition struct {
	Partition string          `json:"partition" yaml:"partition"`
	Companies []exportCompany `json:"companies" yaml:"companies"`
}

type exportDoc struct {
	Owned  []exportCompany   `json:"owned" yaml:"owned"`
	Shared []exportPartition `json:"shared" yaml:"shared"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export owned and shared companies with their employees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		doc, err := buildExport(ctx)
		if err != nil {
			return err
		}

		var data []byte
		switch format {
		case "yaml", "yml":
			data, err = yaml.Marshal(doc)
		case "json":
			data, err = json.MarshalIndent(doc, "", "  ")
			data = append(data, '\n')
		default:
			return errmap.New(errmap.CodeInvalidInput, fmt.Sprintf("unknown format %q, expected yaml or json", format), nil)
		}
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}

		var w io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}
		_, err = w.Write(data)
		return err
	},
}

func buildExport(ctx context.Context) (exportDoc, error) {
	var doc exportDoc

	companies, err := loadCompanies(ctx)
	if err != nil {
		return doc, err
	}
	for _, c := range companies.Entities() {
		ec, err := exportOf(ctx, c, store.OwnedPartition)
		if err != nil {
			return doc, err
		}
		doc.Owned = append(doc.Owned, ec)
	}

	shared := application.Shared(nil)
	if err := shared.Load(ctx); err != nil {
		return doc, err
	}
	partitions := shared.Partitions()
	for i, section := range shared.Entities() {
		part := exportPartition{Partition: partitions[i]}
		for _, c := range section {
			ec, err := exportOf(ctx, c, partitions[i])
			if err != nil {
				return doc, err
			}
			part.Companies = append(part.Companies, ec)
		}
		doc.Shared = append(doc.Shared, part)
	}
	return doc, nil
}

func exportOf(ctx context.Context, c mcompany.Company, partition string) (exportCompany, error) {
	ec := exportCompany{ID: c.ID.String(), Name: c.Name, Sharing: c.Sharing.String()}
	employees := application.Employees(c.ID, partition, nil)
	if err := employees.Load(ctx); err != nil {
		return ec, err
	}
	for _, e := range employees.Entities() {
		ec.Employees = append(ec.Employees, exportEmployee{ID: e.ID.String(), Name: e.Name, HasPhoto: len(e.Photo) > 0})
	}
	return ec, nil
}
