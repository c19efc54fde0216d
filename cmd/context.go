package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/sharedcal/internal/config"
	"github.com/teemow/sharedcal/internal/logging"
	"github.com/teemow/sharedcal/internal/server"
)

// openServerContext wires the calendar service for one-shot commands.
// Logs go to stderr so command output on stdout stays machine readable.
// The caller must Shutdown the returned context.
func openServerContext(cmd *cobra.Command) (*server.ServerContext, config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, config.Config{}, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, config.Config{}, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sc, err := server.NewServerContext(ctx, cfg, server.Options{Logger: logger})
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, cfg, nil
}
