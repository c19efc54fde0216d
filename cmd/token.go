package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect the shared Google credential",
	}
	cmd.AddCommand(newTokenStatusCmd())
	return cmd
}

func newTokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the credential status as JSON (token values are never shown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, _, err := openServerContext(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			status, err := sc.Service().CredentialStatus(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode token status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
