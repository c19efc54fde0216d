package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootCmd represents the base command for the sharedcal application
var rootCmd = &cobra.Command{
	Use:   "sharedcal",
	Short: "MCP server for one shared Google Calendar",
	Long: `sharedcal exposes a single shared Google Calendar identity to MCP
(Model Context Protocol) clients.

Every client acts through the same stored OAuth credential. Mutating tools
take an idempotency key so retried requests never create duplicate events.

Typical setup:
  1. sharedcal bootstrap url            (open the printed consent URL)
  2. sharedcal bootstrap exchange --code CODE --state STATE
  3. sharedcal serve --transport stdio`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sharedcal version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// addConfigFlags registers the flags shared by every command that touches
// the credential or the calendar. Their values are bound by config.Load.
func addConfigFlags(fs *pflag.FlagSet) {
	fs.Bool("debug", false, "Enable debug logging")
	fs.String("google-client-id", "", "Google OAuth client ID. Can also use GOOGLE_OAUTH_CLIENT_ID env var.")
	fs.String("google-client-secret", "", "Google OAuth client secret. Can also use GOOGLE_OAUTH_CLIENT_SECRET env var.")
	fs.String("google-redirect-url", "", "OAuth redirect URI registered for the client. Can also use GOOGLE_OAUTH_REDIRECT_URI env var.")
	fs.String("calendar-id", "primary", "Calendar used when a tool call names none. Can also use GOOGLE_CALENDAR_DEFAULT_ID env var.")
	fs.String("storage-type", "file", "Storage backend for tokens and idempotency records: file or valkey")
	fs.String("storage-dir", "", "Directory for file storage (default: $XDG_DATA_HOME/sharedcal)")
	fs.String("valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	fs.String("valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	fs.Bool("valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	fs.String("valkey-key-prefix", "sharedcal:", "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	fs.Int("valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
}

func init() {
	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBootstrapCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
