package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ligustah/offliner/pkg/repository"
)

// newValidateCommand checks that every file recorded in a repository's
// manifest is present with the recorded size and sha1.
func newValidateCommand(ctx context.Context, _ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate REPOSITORY",
		Short: "Verify a mirrored repository against its manifest",
		Long: `Re-read every file recorded in the repository manifest and check that it
exists, has the recorded size and hashes to the recorded sha1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			store, err := repository.Open(ctx, args[0])
			if err != nil {
				return exitWith(ExitStorageError, err)
			}
			defer store.Close()

			result, err := repository.Validate(ctx, store)
			if err != nil {
				if repository.IsNotExist(err) {
					return exitWith(ExitStorageError, fmt.Errorf("no manifest found in %s", args[0]))
				}
				return exitWith(ExitStorageError, err)
			}

			fmt.Fprintf(out, "Repository: %s\n", args[0])
			fmt.Fprintf(out, "Total size: %s\n", humanize.IBytes(uint64(result.TotalSize)))
			fmt.Fprintf(out, "Files: %d\n", result.Files)

			if result.Valid {
				fmt.Fprintln(out, "Status: VALID")
				return nil
			}

			fmt.Fprintln(out, "Status: INVALID")
			fmt.Fprintf(out, "Missing files: %d\n", result.Missing)
			fmt.Fprintf(out, "Size mismatches: %d\n", result.SizeMismatches)
			fmt.Fprintf(out, "Digest mismatches: %d\n", result.DigestMismatches)

			if len(result.Errors) > 0 {
				fmt.Fprintln(out, "\nErrors:")
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}

			return exitWith(ExitValidationFailed, nil)
		},
	}
}
