package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligustah/offliner/pkg/repository"
)

// newDeleteCommand removes every file recorded in a repository's manifest.
// By default it prompts for confirmation unless --force is specified.
func newDeleteCommand(ctx context.Context, _ *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete REPOSITORY",
		Short: "Remove every mirrored file recorded in the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]

			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete all mirrored files from %s? [y/N]: ", root)
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.TrimSpace(strings.ToLower(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
					return nil
				}
			}

			store, err := repository.Open(ctx, root)
			if err != nil {
				return exitWith(ExitStorageError, err)
			}
			defer store.Close()

			if err := repository.Delete(ctx, store); err != nil {
				if repository.IsNotExist(err) {
					return exitWith(ExitStorageError, fmt.Errorf("no manifest found in %s", root))
				}
				return exitWith(ExitStorageError, err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "[offliner] Deleted: %s\n", root)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}
