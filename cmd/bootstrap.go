package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/sharedcal/internal/google"
)

func newBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the shared Google credential",
		Long: `Run the one-time OAuth consent flow that stores the shared refresh token.

  1. sharedcal bootstrap url
     Prints the Google consent URL and remembers a one-time state.
  2. Open the URL, approve access and copy the code and state from the
     redirect (or let the streamable-http server handle /oauth/callback).
  3. sharedcal bootstrap exchange --code CODE --state STATE`,
	}

	cmd.AddCommand(newBootstrapURLCmd())
	cmd.AddCommand(newBootstrapExchangeCmd())
	return cmd
}

func newBootstrapURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the Google OAuth consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, _, err := openServerContext(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			consentURL, err := sc.Bootstrap().Start(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), consentURL)
			return err
		},
	}
}

func newBootstrapExchangeCmd() *cobra.Command {
	var code, state string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code for the shared tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, _, err := openServerContext(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			rec, err := sc.Bootstrap().Complete(cmd.Context(), code, state)
			if err != nil {
				return err
			}
			return printExchangeResult(cmd.OutOrStdout(), sc.Stores().Tokens.Location(), rec)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the OAuth redirect")
	cmd.Flags().StringVar(&state, "state", "", "State parameter from the OAuth redirect")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func printExchangeResult(w io.Writer, location string, rec google.CredentialRecord) error {
	expires := "unknown"
	if rec.ExpiresAt != nil {
		expires = rec.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w, "Google Calendar bootstrap completed successfully.\n"+
		"  Token store:       %s\n"+
		"  Refresh token:     %t\n"+
		"  Access expires at: %s\n",
		location, rec.RefreshToken != "", expires)
	return err
}
