package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store tokens locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			if username == "" {
				fmt.Fprint(os.Stderr, "Username: ")

				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading username: %w", err)
				}

				username = strings.TrimSpace(line)
			}

			if username == "" {
				return fmt.Errorf("username is required")
			}

			fmt.Fprint(os.Stderr, "Password: ")

			password, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)

			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			if err := cc.Client.Login(cmd.Context(), username, string(password)); err != nil {
				return err
			}

			statusf(cc.Quiet, "Logged in as %s.", username)

			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompted if omitted)")

	return cmd
}
