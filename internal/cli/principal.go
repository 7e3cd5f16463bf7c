package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/grantkit"
)

func newPrincipalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Maintain the principal directory",
	}
	cmd.AddCommand(newPrincipalSetCmd())
	return cmd
}

func newPrincipalSetCmd() *cobra.Command {
	var (
		name     string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "set <principal-id>",
		Short: "Create or update a principal's active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			p := &grantkit.Principal{ID: args[0], DisplayName: name, IsActive: !inactive}
			if err := rt.directory.UpsertPrincipal(cmd.Context(), p); err != nil {
				return err
			}
			state := "active"
			if inactive {
				state = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", p.ID, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark the principal inactive")
	return cmd
}
