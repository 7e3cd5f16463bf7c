package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/grantkit"
)

const adminRoleName = "System Administrator"

func newSeedCmd() *cobra.Command {
	var admin string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the built-in roles and optionally bootstrap an administrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := systemContext(cmd.Context())
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			roles, err := rt.service.EnsureRoles(ctx, grantkit.DefaultRoleSet())
			if err != nil {
				return fmt.Errorf("seed roles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d roles in catalog\n", len(roles))
			if admin == "" {
				return nil
			}

			adminRole, ok := grantkit.NewCatalog(roles).ByName(adminRoleName)
			if !ok {
				return fmt.Errorf("role %q missing after seeding", adminRoleName)
			}
			if err := rt.directory.UpsertPrincipal(ctx, &grantkit.Principal{ID: admin, IsActive: true}); err != nil {
				return err
			}
			a, err := rt.service.AssignRole(ctx, grantkit.AssignRequest{
				PrincipalID: admin,
				RoleID:      adminRole.ID,
				Reason:      "bootstrap administrator",
				IsPrimary:   true,
			})
			if errors.Is(err, grantkit.ErrDuplicateAssignment) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already holds %s\n", admin, adminRoleName)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %s to %s (%s)\n", adminRoleName, admin, a.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&admin, "admin", "", "principal ID to make System Administrator")
	return cmd
}
