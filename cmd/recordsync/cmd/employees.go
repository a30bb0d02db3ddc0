package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/pkg/interactor"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	employeePartition string
	employeePhoto     string
	employeeNoPhoto   bool
)

func init() {
	rootCmd.AddCommand(employeesCmd)

	employeesCmd.PersistentFlags().StringVar(&employeePartition, "partition", store.OwnedPartition, "partition holding the company")
	employeesRenameCmd.Flags().StringVar(&employeePhoto, "photo", "", "replace the photo with the contents of this file")
	employeesRenameCmd.Flags().BoolVar(&employeeNoPhoto, "no-photo", false, "remove the photo")

	employeesCmd.AddCommand(employeesListCmd)
	employeesCmd.AddCommand(employeesAddCmd)
	employeesCmd.AddCommand(employeesRmCmd)
	employeesCmd.AddCommand(employeesRenameCmd)
}

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "Manage the employees of a company",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func loadEmployees(ctx context.Context, companyArg string) (*interactor.Employee, error) {
	companyID, err := parseID(companyArg)
	if err != nil {
		return nil, err
	}
	employees := application.Employees(companyID, employeePartition, nil)
	if err := employees.Load(ctx); err != nil {
		return nil, err
	}
	return employees, nil
}

var employeesListCmd = &cobra.Command{
	Use:   "list [company-id]",
	Short: "List the employees of a company sorted by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		employees, err := loadEmployees(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printEmployees(cmd.OutOrStdout(), employees.Entities())
		return nil
	},
}

var employeesAddCmd = &cobra.Command{
	Use:   "add [company-id] [name]",
	Short: "Add an employee to a company",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, err := parseID(args[0])
		if err != nil {
			return err
		}
		id, err := application.Employees(companyID, employeePartition, nil).Insert(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var employeesRmCmd = &cobra.Command{
	Use:   "rm [company-id] [employee-id]",
	Short: "Delete an employee",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		employees, err := loadEmployees(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		employee, err := findEmployee(employees, id)
		if err != nil {
			return err
		}
		return employees.Delete(cmd.Context(), employee)
	},
}

var employeesRenameCmd = &cobra.Command{
	Use:   "rename [company-id] [employee-id] [name]",
	Short: "Rename an employee; without a name the name is cleared",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		employees, err := loadEmployees(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		employee, err := findEmployee(employees, id)
		if err != nil {
			return err
		}

		var name *string
		if len(args) == 3 {
			name = &args[2]
		}
		photo := employee.Photo
		switch {
		case employeeNoPhoto:
			photo = nil
		case employeePhoto != "":
			if photo, err = os.ReadFile(employeePhoto); err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
		}
		return employees.Update(cmd.Context(), employee, name, photo)
	},
}
