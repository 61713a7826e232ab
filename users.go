package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			users, err := cc.Service.Users(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(users)
			}

			rows := make([][]string, 0, len(users))
			for _, u := range users {
				active := "yes"
				if !u.Active {
					active = "no"
				}

				rows = append(rows, []string{
					strconv.Itoa(u.ID),
					u.Username,
					u.FullName,
					u.Role,
					active,
				})
			}

			printTable(os.Stdout, []string{"ID", "USERNAME", "NAME", "ROLE", "ACTIVE"}, rows)

			return nil
		},
	})

	return cmd
}
