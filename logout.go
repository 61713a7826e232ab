package main

import (
	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.Client.Logout(); err != nil {
				return err
			}

			statusf(cc.Quiet, "Logged out.")

			return nil
		},
	}
}
