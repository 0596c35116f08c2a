package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"invofox/internal/config"
	"invofox/internal/transport/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server for the chat front end",
	}
	cmd.AddCommand(newMCPServeCmd())
	return cmd
}

func newMCPServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve ledger tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			a, err := openApp(cmd.Context(), func(c *config.AppConfig) {
				if c.Log.Output == "" || c.Log.Output == "stdout" {
					c.Log.Output = "stderr"
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Documents != nil {
				go a.Documents.Run(cmd.Context(), a.Config.Documents.RetryInterval)
			}

			s := mcp.NewLedgerMCPServer(a.Ledger, version)
			return server.ServeStdio(s)
		},
	}
}
