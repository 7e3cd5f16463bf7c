package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/grantkit/internal/sweep"
)

func newLapseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lapse",
		Short: "Mark expired assignments inactive once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := systemContext(cmd.Context())
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := sweep.NewSweeper(rt.service, nil, rt.logger).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d assignments lapsed\n", res.Lapsed)
			return nil
		},
	}
}
