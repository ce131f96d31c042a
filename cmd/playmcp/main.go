// playmcp — MCP server for the Google Play publisher APIs.
//
// Usage:
//
//	playmcp serve              # stdio transport (Claude Desktop, MCP Inspector)
//	playmcp serve --http :8080 # HTTP/SSE transport
//	playmcp tools              # print the tool catalog
//	playmcp audit              # show recent invocations from the audit log
//	playmcp version            # show version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/play-console-mcp/internal/audit"
	"github.com/RobinCoderZhao/play-console-mcp/internal/config"
	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
	"github.com/RobinCoderZhao/play-console-mcp/internal/tools"
	"github.com/RobinCoderZhao/play-console-mcp/pkg/mcpserver"
)

var version = "dev"

const serverName = "play-console-mcp"

func main() {
	rootCmd := &cobra.Command{
		Use:   "playmcp",
		Short: "MCP server for Google Play: reviews, replies, vitals metrics, listings, and subscription checks",
		Long: "playmcp exposes Google Play publisher operations as MCP tools, " +
			"authenticated via a Google Service Account, over stdio or HTTP/SSE.",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var cfgPath string
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio by default, HTTP with --http)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "playmcp.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on this address instead of stdio")
	return cmd
}

func toolsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Listing needs no credentials; the client is never called.
			catalog := tools.NewCatalog(playapi.NewClient(nil))
			defs := catalog.Tools()

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			for _, d := range defs {
				fmt.Printf("%-28s %s\n", d.Name, d.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output JSON with full input schemas")
	return cmd
}

func auditCmd() *cobra.Command {
	var cfgPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent invocations from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Audit.Path == "" {
				return fmt.Errorf("no audit log configured (audit.path)")
			}
			log, err := audit.Open(cfg.Audit.Path)
			if err != nil {
				return err
			}
			defer log.Close()

			entries, err := log.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-24s %-20s %4dms", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Tool, e.Outcome, e.DurationMs)
				if e.Detail != "" {
					line += "  " + e.Detail
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "playmcp.yaml", "path to the YAML config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("playmcp %s\n", version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	var cfg config.Config
	if err := config.LoadOrDefault(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCredential resolves the service identity. The configured value is
// either a key file path or, for container deployments that inject the key
// directly, the decoded JSON itself.
func loadCredential(cfg *config.Config) (*playapi.ServiceCredential, error) {
	src := cfg.Credentials.File
	if src == "" {
		return nil, fmt.Errorf("no service account configured: set credentials.file or GOOGLE_SERVICE_ACCOUNT_JSON")
	}
	if strings.HasPrefix(strings.TrimSpace(src), "{") {
		return playapi.Load([]byte(src))
	}
	return playapi.LoadFile(src)
}

func serve(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	cred, err := loadCredential(cfg)
	if err != nil {
		return err
	}

	client := playapi.NewClient(
		playapi.NewCredentials(cred),
		playapi.WithBaseURLs(cfg.Upstream.PublisherBaseURL, cfg.Upstream.ReportingBaseURL),
	)

	var opts []tools.Option
	if cfg.Audit.Path != "" {
		log, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer log.Close()
		opts = append(opts, tools.WithRecorder(log))
	}

	catalog := tools.NewCatalog(client, opts...)

	server := mcpserver.New(serverName, version, catalog)
	server.Use(mcpserver.RecoveryMiddleware())
	server.Use(mcpserver.LoggingMiddleware(slog.Default()))

	if cfg.HTTP.Addr != "" {
		if cfg.HTTP.AuthToken != "" {
			server.SetHTTPAuthToken(cfg.HTTP.AuthToken)
		}
		return server.RunHTTP(ctx, cfg.HTTP.Addr)
	}
	return server.RunStdio(ctx)
}
