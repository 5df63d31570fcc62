// Atlas CLI - cross-provider resource discovery and correlation
//
// Usage:
//   atlas discover --gcp-project my-proj --aws-region us-east-1 [options]
//   atlas snapshots --store clickhouse
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"cloud-atlas/internal/platform/aws"
	"cloud-atlas/internal/platform/gcp"
	"cloud-atlas/internal/platform/k8s"
	"cloud-atlas/internal/storage"
	"cloud-atlas/pkg/assembly"
	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "atlas",
		Usage:   "Discover cloud and cluster resources into one correlated dependency graph",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Value:   "none",
				Usage:   "Snapshot store backend (none, clickhouse, postgres)",
				EnvVars: []string{"ATLAS_STORE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "atlas",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Usage:   "Postgres DSN for the snapshot store",
				EnvVars: []string{"ATLAS_POSTGRES_DSN"},
			},
		},

		Commands: []*cli.Command{
			discoverCommand(),
			snapshotsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		platform.LogFatal(slog.Default(), "atlas failed", err)
	}
}

// =============================================================================
// DISCOVER COMMAND
// =============================================================================

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Explore every configured provider and emit the correlated graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gcp-project",
				Usage:   "GCP project to explore (enables lb and sql domains)",
				EnvVars: []string{"ATLAS_GCP_PROJECT"},
			},
			&cli.StringFlag{
				Name:    "gcp-location",
				Usage:   "GCP location; switches lb to regional scope and enables connectors",
				EnvVars: []string{"ATLAS_GCP_LOCATION"},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region to explore (enables ECR)",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.BoolFlag{
				Name:    "kubernetes",
				Usage:   "Explore the current Kubernetes cluster",
				EnvVars: []string{"ATLAS_KUBERNETES"},
			},
			&cli.StringFlag{
				Name:    "kubeconfig",
				Usage:   "Path to kubeconfig; in-cluster config when empty",
				EnvVars: []string{"KUBECONFIG"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the graph to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address during the run",
				EnvVars: []string{"ATLAS_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "metrics-api-key",
				Usage:   "Require this X-API-Key header on the metrics endpoint",
				EnvVars: []string{"ATLAS_METRICS_API_KEY"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "Overall discovery deadline",
			},
		},
		Action: runDiscover,
	}
}

func runDiscover(c *cli.Context) error {
	logger := platform.InitLogger()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if addr := c.String("metrics-addr"); addr != "" {
		go serveMetrics(addr, c.String("metrics-api-key"), logger)
	}

	providers := buildProviders(c, logger)
	if len(providers) == 0 {
		return fmt.Errorf("no provider scope given; set --gcp-project, --aws-region, or --kubernetes")
	}

	start := time.Now()
	result := explore.RunProviders(ctx, logger, providers)
	logger.Info("exploration complete",
		"resources", len(result.Resources),
		"failures", len(result.Failures),
		"durationMs", time.Since(start).Milliseconds(),
	)

	assembler := assembly.New(logger).
		Register("gcp/lb", gcp.ExpandLBLinks).
		Register("gcp/sql", gcp.ExpandSQLLinks).
		Register("k8s", k8s.ExpandLinks)
	graph, err := assembler.Assemble(result)
	if err != nil {
		return err
	}

	document, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return err
	}

	if err := persistSnapshot(ctx, c, graph, document, len(result.Failures), logger); err != nil {
		return err
	}

	if path := c.String("output"); path != "" {
		return os.WriteFile(path, document, 0o644)
	}
	fmt.Println(string(document))
	return nil
}

func buildProviders(c *cli.Context, logger *slog.Logger) []explore.Provider {
	var providers []explore.Provider

	if project := c.String("gcp-project"); project != "" {
		location := c.String("gcp-location")
		providers = append(providers,
			explore.Provider{Name: "gcp/lb", Run: func(ctx context.Context) (explore.Result, error) {
				return gcp.ExploreLB(ctx, project, location, logger)
			}},
			explore.Provider{Name: "gcp/sql", Run: func(ctx context.Context) (explore.Result, error) {
				return gcp.ExploreSQL(ctx, project, logger)
			}},
		)
		if location != "" {
			providers = append(providers, explore.Provider{Name: "gcp/connector", Run: func(ctx context.Context) (explore.Result, error) {
				return gcp.ExploreConnector(ctx, project, location, logger)
			}})
		}
	}

	if region := c.String("aws-region"); region != "" {
		providers = append(providers, explore.Provider{Name: "aws/ecr", Run: func(ctx context.Context) (explore.Result, error) {
			return aws.ExploreECR(ctx, region, logger)
		}})
	}

	if c.Bool("kubernetes") || c.String("kubeconfig") != "" {
		kubeconfig := c.String("kubeconfig")
		providers = append(providers, explore.Provider{Name: "k8s", Run: func(ctx context.Context) (explore.Result, error) {
			return k8s.Explore(ctx, kubeconfig, logger)
		}})
	}

	return providers
}

func persistSnapshot(ctx context.Context, c *cli.Context, graph *discovery.Discovery, document []byte, failures int, logger *slog.Logger) error {
	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer store.Close()

	linkCount := 0
	for _, links := range graph.Links {
		linkCount += len(links)
	}
	snap := &storage.Snapshot{
		RunID:         uuid.New(),
		CreatedAt:     time.Now(),
		Document:      document,
		ResourceCount: len(graph.Resources),
		LinkCount:     linkCount,
		FailureCount:  failures,
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Info("snapshot saved", "runId", snap.RunID, "resources", snap.ResourceCount, "links", snap.LinkCount)
	return nil
}

func serveMetrics(addr, apiKey string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", platform.APIKeyMiddleware(apiKey, promhttp.Handler()))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// =============================================================================
// SNAPSHOTS COMMAND
// =============================================================================

func snapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "List stored discovery snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum snapshots to list",
			},
		},
		Action: runSnapshots,
	}
}

func runSnapshots(c *cli.Context) error {
	ctx := c.Context

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no snapshot store configured; set --store")
	}
	defer store.Close()

	infos, err := store.ListSnapshots(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  resources=%d links=%d failures=%d\n",
			info.RunID, info.CreatedAt.Format(time.RFC3339),
			info.ResourceCount, info.LinkCount, info.FailureCount)
	}
	return nil
}

func openStore(ctx context.Context, c *cli.Context) (storage.SnapshotStore, error) {
	switch c.String("store") {
	case "", "none":
		return nil, nil
	case "clickhouse":
		return storage.NewClickHouseStore(ctx, &storage.ClickHouseConfig{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
		})
	case "postgres":
		dsn := c.String("postgres-dsn")
		if dsn == "" {
			return nil, fmt.Errorf("--postgres-dsn is required with --store postgres")
		}
		return storage.NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.String("store"))
	}
}
