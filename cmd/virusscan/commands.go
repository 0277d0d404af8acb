package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/virusscan/internal/adapters/clamd"
	"github.com/bft-labs/virusscan/internal/adapters/dataverse"
	logadapter "github.com/bft-labs/virusscan/internal/adapters/log"
	"github.com/bft-labs/virusscan/internal/adapters/metrics"
	"github.com/bft-labs/virusscan/internal/app"
	"github.com/bft-labs/virusscan/internal/cliconfig"
	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/health"
	"github.com/bft-labs/virusscan/internal/httpapi"
)

const shutdownTimeout = 15 * time.Second

func (c *cli) logger() *logadapter.ZerologAdapter {
	return logadapter.NewZerologAdapter(c.log)
}

func (c *cli) clamdClient() (*clamd.Client, error) {
	return clamd.New(c.cfg.ClamdNetwork, c.cfg.ClamdAddress, c.cfg.SessionConfig(),
		clamd.WithDialTimeout(c.cfg.ClamdTimeout),
		clamd.WithConnectionPerSession(c.cfg.ClamdConnPerSession),
		clamd.WithLogger(c.logger()),
	)
}

func (c *cli) dataverseClient() (*dataverse.Client, error) {
	// Client.Timeout would also bound file downloads, so only the wait for
	// response headers is limited.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = c.cfg.DataverseTimeout
	return dataverse.NewClient(c.cfg.DataverseURL, c.cfg.DataverseAPIKey,
		&http.Client{Transport: transport}, c.logger())
}

func (c *cli) healthRegistry() (*health.Registry, error) {
	scanner, err := c.clamdClient()
	if err != nil {
		return nil, err
	}
	dv, err := c.dataverseClient()
	if err != nil {
		return nil, err
	}
	logger := c.logger()
	return health.NewRegistry(
		health.NewClamdCheck(scanner, logger),
		health.NewDataverseCheck(dv, logger),
	), nil
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow step HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(parent context.Context) error {
	logger := c.logger()

	scanner, err := c.clamdClient()
	if err != nil {
		return err
	}
	dv, err := c.dataverseClient()
	if err != nil {
		return err
	}
	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	scans := app.NewScanService(scanner, m, logger)
	invoker := app.NewInvoker(app.InvokerConfig{
		Workers:     c.cfg.Workers,
		QueueSize:   c.cfg.QueueSize,
		MaxFileSize: c.cfg.MaxFileSize,
	}, scans, dv, m, logger)

	srv := httpapi.New(httpapi.Options{
		Address:      c.cfg.ListenAddress,
		Invoker:      invoker,
		Scanner:      scans,
		Health:       health.NewRegistry(health.NewClamdCheck(scanner, logger), health.NewDataverseCheck(dv, logger)),
		Recorder:     m,
		Logger:       c.log,
		MaxScanBytes: c.cfg.MaxFileSize,
	})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Invocations outlive the signal so Stop can drain them.
	if err := invoker.Start(context.WithoutCancel(parent)); err != nil {
		return err
	}

	if cliconfig.FileExists(c.cfgPath) {
		w := cliconfig.NewWatcher(c.cfgPath,
			func() (cliconfig.Config, error) { return cliconfig.Load(c.base, c.cfgPath, c.changed) },
			func(cfg cliconfig.Config) {
				if err := scanner.SetSessionConfig(cfg.SessionConfig()); err != nil {
					c.log.Error().Err(err).Msg("session config not applied")
					return
				}
				c.log.Info().
					Int("chunk_size", cfg.ChunkSize).
					Int("buffer_size", cfg.BufferSize).
					Int("overlap_size", cfg.OverlapSize).
					Msg("session config applied")
			},
			logger,
		)
		go func() {
			if err := w.Run(ctx); err != nil {
				c.log.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var serveErr error
	select {
	case <-ctx.Done():
		c.log.Info().Msg("received signal, stopping...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.log.Warn().Err(err).Msg("http shutdown")
	}
	if err := invoker.Stop(app.ShutdownTimeout); err != nil {
		return errors.Join(serveErr, fmt.Errorf("stop invoker: %w", err))
	}
	return serveErr
}

func newScanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <file>",
		Short: "Scan a file, or stdin when the file is -",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner, err := c.clamdClient()
			if err != nil {
				return err
			}

			src := os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			scans := app.NewScanService(scanner, nil, c.logger())
			report, verdict, err := scans.Scan(cmd.Context(), src)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d sessions, %d bytes)\n",
				args[0], verdict.Raw, report.Sessions, report.Bytes)
			if verdict.Status == domain.VerdictInfected {
				return errInfected
			}
			return nil
		},
	}
}

func newPingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Send PING to clamd and print the reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner, err := c.clamdClient()
			if err != nil {
				return err
			}
			reply, err := scanner.Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the clamd and Dataverse health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.healthRegistry()
			if err != nil {
				return err
			}

			results, healthy := reg.RunAll(cmd.Context())
			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				if res := results[name]; res.Healthy {
					fmt.Fprintf(out, "%s: healthy\n", name)
				} else {
					fmt.Fprintf(out, "%s: unhealthy: %s\n", name, res.Message)
				}
			}
			if !healthy {
				return errors.New("health check failed")
			}
			return nil
		},
	}
}
