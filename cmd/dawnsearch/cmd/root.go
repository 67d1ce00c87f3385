// Package cmd provides the CLI commands for dawnsearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dawnsearch/dawnsearch/internal/config"
	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/embed"
	"github.com/dawnsearch/dawnsearch/internal/httpapi"
	"github.com/dawnsearch/dawnsearch/internal/lifecycle"
	"github.com/dawnsearch/dawnsearch/internal/logging"
	"github.com/dawnsearch/dawnsearch/internal/preflight"
	"github.com/dawnsearch/dawnsearch/internal/search"
	"github.com/dawnsearch/dawnsearch/internal/searchsvc"
	"github.com/dawnsearch/dawnsearch/internal/udpsvc"
	"github.com/dawnsearch/dawnsearch/pkg/version"
)

// NewRootCmd builds the dawnsearch root command: `dawnsearch [config_file]`
// per spec section 6. It starts the search service and whichever of the
// UDP and HTTP services the configuration enables, and runs them until a
// shutdown signal arrives. Exit status follows spec section 6: 0 on a
// graceful shutdown, non-zero on a config parse failure or a FatalStartup
// condition.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dawnsearch [config_file]",
		Short:        "Distributed semantic web search node",
		Version:      version.Version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		// Errors are printed once, formatted by internal/errors.FormatForCLI
		// in main.go, rather than cobra's own default "Error: %v" line.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if len(args) == 1 {
				configPath = args[0]
			}
			return runNode(cmd.Context(), configPath)
		},
	}
	cmd.SetVersionTemplate("dawnsearch version {{.Version}}\n")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newVerifyCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func runNode(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cleanup, err := setupLogging(cfg.Debug)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	if configPath != "" {
		if watcher, err := config.Watch(configPath); err != nil {
			slog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		} else {
			defer watcher.Close()
		}
	}

	checker := preflight.New()
	if results := checker.RunAll(ctx, cfg.DataDir); checker.HasCriticalFailures(results) {
		return dawnerrors.FatalStartup("data directory preflight failed: "+checker.SummaryStatus(results), nil)
	}
	netResults := checker.RunNetwork(ctx, networkAddr(cfg.UDP, cfg.UDPListenAddress), networkAddr(cfg.Web, cfg.WebListenAddress))
	if checker.HasCriticalFailures(netResults) {
		return dawnerrors.FatalStartup("listener preflight failed: "+checker.SummaryStatus(netResults), nil)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderOllama, "")
	if err != nil {
		return fmt.Errorf("construct embedder: %w", err)
	}

	token := lifecycle.New(ctx)
	defer token.Shutdown()

	provider, err := search.Open(token.Context(), cfg.DataDir, embedder)
	if err != nil {
		return dawnerrors.FatalStartup("open search provider", err)
	}

	svc := searchsvc.New(provider, nil)

	var udpService *udpsvc.Service
	if cfg.UDP {
		udpService, err = udpsvc.New(udpsvc.Config{
			ListenAddr:   cfg.UDPListenAddress,
			Trackers:     cfg.Trackers,
			AcceptInsert: cfg.AcceptInsert,
			UPnP:         cfg.UPnP,
		}, svc)
		if err != nil {
			return fmt.Errorf("start udp service: %w", err)
		}
		svc.SetFanout(udpService)
	}

	group, groupCtx := errgroup.WithContext(token.Context())
	group.Go(func() error { return svc.Run(groupCtx) })
	if udpService != nil {
		group.Go(func() error { return udpService.Run(groupCtx) })
	}
	if cfg.Web {
		group.Go(httpServerLoop(groupCtx, cfg.WebListenAddress, svc, udpService))
	}

	slog.Info("dawnsearch_started",
		slog.String("instance_id", instanceIDOf(udpService)),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("udp", cfg.UDP),
		slog.Bool("web", cfg.Web),
		slog.Bool("accept_insert", cfg.AcceptInsert))

	err = group.Wait()
	slog.Info("dawnsearch_shutting_down")
	if shutdownErr := svc.Shutdown(context.Background()); shutdownErr != nil {
		var attrs []any
		for k, v := range dawnerrors.FormatForLog(shutdownErr) {
			attrs = append(attrs, slog.Any(k, v))
		}
		slog.Warn("search_service_shutdown_failed", attrs...)
	}
	return err
}

func instanceIDOf(udpService *udpsvc.Service) string {
	if udpService == nil {
		return ""
	}
	return udpService.InstanceID()
}

func networkAddr(enabled bool, addr string) string {
	if !enabled {
		return ""
	}
	return addr
}

func setupLogging(debug int) (func(), error) {
	if debug <= 0 {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
		slog.SetDefault(slog.New(handler))
		return func() {}, nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// httpServerLoop builds and runs the HTTP adapter, shutting down cleanly
// when ctx is cancelled. Matches errgroup.Group.Go's func() error shape.
func httpServerLoop(ctx context.Context, addr string, svc *searchsvc.Service, udpService *udpsvc.Service) func() error {
	return func() error {
		adapter := httpapi.New(svc, peerListerOf(udpService))
		server := &http.Server{Addr: addr, Handler: adapter.Handler()}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- server.Serve(ln) }()

		select {
		case <-ctx.Done():
			return server.Shutdown(context.Background())
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	}
}

func peerListerOf(udpService *udpsvc.Service) httpapi.PeerLister {
	if udpService == nil {
		return nil
	}
	return peerListerAdapter{udpService}
}

type peerListerAdapter struct {
	svc *udpsvc.Service
}

func (p peerListerAdapter) Peers(ctx context.Context) ([]httpapi.PeerSnapshot, error) {
	snaps, err := p.svc.Peers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.PeerSnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, httpapi.PeerSnapshot{
			InstanceID:   s.InstanceID,
			Address:      s.Address,
			AcceptInsert: s.AcceptInsert,
			PagesIndexed: s.PagesIndexed,
		})
	}
	return out, nil
}
