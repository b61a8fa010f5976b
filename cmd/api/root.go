package main

import (
	"github.com/spf13/cobra"

	"github.com/skillbox/postservice/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	serve := newServeCmd(cfg)

	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Posts and photos API backed by PostgreSQL and object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the binary without a subcommand starts the server.
		RunE: serve.RunE,
	}

	cmd.Version = version
	cmd.AddCommand(
		serve,
		newMigrateCmd(cfg),
	)

	return cmd
}
