package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show authentication status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			_, present, err := cc.Creds.Get()
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(struct {
					LoggedIn bool   `json:"logged_in"`
					BaseURL  string `json:"base_url"`
				}{present, cc.Config.BaseURL})
			}

			if !present {
				fmt.Printf("Not logged in (%s).\n", cc.Config.BaseURL)
				return nil
			}

			fmt.Printf("Logged in to %s.\n", cc.Config.BaseURL)

			return nil
		},
	}
}
