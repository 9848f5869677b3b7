package main

import (
	"context"
	"fmt"
	"time"

	"roomchat/internal/app"

	"github.com/spf13/cobra"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Run the periodic data reset once",
		Long:  "reset wipes all rooms and sessions when the stored period is stale. With --force the period check is skipped; the reset lock is still honoured.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			done, err := a.ResetService.RunOnce(ctx, force)
			if err != nil {
				return err
			}
			if done {
				fmt.Fprintf(cmd.OutOrStdout(), "reset done for %s\n", a.ResetService.Period(time.Now()))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the period check")
	return cmd
}
