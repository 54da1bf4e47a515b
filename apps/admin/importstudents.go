package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core/branch"
)

func (cli *commandLine) importStudentsCmd() *cobra.Command {
	var branchRef, path string
	cmd := &cobra.Command{
		Use:   "importstudents",
		Short: "Create or update the students of a branch from an .xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			br, err := findBranch(ctx, cli.branches, branchRef)
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "opening file")
			}
			defer file.Close()

			report, err := cli.students.ImportXLSX(ctx, br.ID, file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d created, %d updated, %d skipped\n", br.Code, report.Created, report.Updated, report.Skipped)
			for _, e := range report.Errors {
				fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&branchRef, "branch", "b", "", "ID or code of the branch")
	cmd.Flags().StringVarP(&path, "file", "f", "", "path of the .xlsx file")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// findBranch looks a branch up by ID, or else by code.
func findBranch(ctx context.Context, svc *branch.Service, ref string) (branch.Branch, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return svc.Get(ctx, ref)
	}
	branches, err := svc.Query(ctx, &branch.QueryFilter{Search: ref}, nil)
	if err != nil {
		return branch.Branch{}, errors.Wrap(err, "querying branches")
	}
	for _, br := range branches {
		if strings.EqualFold(br.Code, ref) {
			return br, nil
		}
	}
	return branch.Branch{}, branch.ErrNotFound
}
