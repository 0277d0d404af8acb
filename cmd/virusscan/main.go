package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/virusscan/internal/cliconfig"
)

const longHelp = `
Scan dataset files for viruses as a step of a repository publication workflow.

Files are streamed to a clamd daemon over the INSTREAM protocol in sessions of
at most chunk-size bytes, each session starting with the last overlap-size bytes
of the previous one so signatures on a session boundary are still detected.

Configure via file ($HOME/.virusscan/config.toml), VIRUSSCAN_* environment
variables, or flags. Flags win over the environment, which wins over the file.
`

var exampleUsage = strings.TrimSpace(`
  virusscan serve --clamd-address localhost:3310 --dataverse-url http://localhost:8080
  virusscan scan ./upload.zip
  virusscan ping --clamd-network unix --clamd-address /run/clamav/clamd.ctl
  virusscan check
`)

// errInfected makes the scan command exit non-zero without an error log line.
var errInfected = errors.New("infected")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the resolved configuration between the root pre-run and the commands.
type cli struct {
	cfg     cliconfig.Config
	base    cliconfig.Config
	cfgPath string
	changed map[string]bool
	log     zerolog.Logger
	errOut  io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{cfg: cliconfig.DefaultConfig(), errOut: errOut}

	root := &cobra.Command{
		Use:           "virusscan",
		Short:         "Virus scan workflow step backed by clamd",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.resolve(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.virusscan/config.toml)")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&c.cfg.ListenAddress, "listen", c.cfg.ListenAddress, "HTTP listen address")

	f.StringVar(&c.cfg.ClamdNetwork, "clamd-network", c.cfg.ClamdNetwork, "clamd network: tcp or unix")
	f.StringVar(&c.cfg.ClamdAddress, "clamd-address", c.cfg.ClamdAddress, "clamd host:port or socket path")
	f.DurationVar(&c.cfg.ClamdTimeout, "clamd-timeout", c.cfg.ClamdTimeout, "clamd dial timeout (0 disables)")
	f.BoolVar(&c.cfg.ClamdConnPerSession, "clamd-conn-per-session", c.cfg.ClamdConnPerSession,
		"open a new clamd connection for every INSTREAM session")

	f.IntVar(&c.cfg.ChunkSize, "chunk-size", c.cfg.ChunkSize, "new input bytes per INSTREAM session")
	f.IntVar(&c.cfg.BufferSize, "buffer-size", c.cfg.BufferSize, "input read and frame size")
	f.IntVar(&c.cfg.OverlapSize, "overlap-size", c.cfg.OverlapSize, "bytes repeated at the start of each following session")

	f.StringVar(&c.cfg.DataverseURL, "dataverse-url", c.cfg.DataverseURL, "Dataverse base URL")
	f.StringVar(&c.cfg.DataverseAPIKey, "dataverse-api-key", c.cfg.DataverseAPIKey, "Dataverse API key")
	f.DurationVar(&c.cfg.DataverseTimeout, "dataverse-timeout", c.cfg.DataverseTimeout, "Dataverse response header timeout")

	f.IntVar(&c.cfg.Workers, "workers", c.cfg.Workers, "concurrent workflow invocations")
	f.IntVar(&c.cfg.QueueSize, "queue-size", c.cfg.QueueSize, "queued workflow invocations before rejecting")
	f.Int64Var(&c.cfg.MaxFileSize, "max-file-size", c.cfg.MaxFileSize, "fail files larger than this many bytes (0 disables)")

	root.AddCommand(
		newServeCmd(c),
		newScanCmd(c),
		newPingCmd(c),
		newCheckCmd(c),
	)
	return root
}

// resolve applies file and environment configuration below the flags.
func (c *cli) resolve(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	if c.cfgPath == "" {
		c.cfgPath = cliconfig.DefaultConfigPath()
	}

	c.base = c.cfg
	cfg, err := cliconfig.Load(c.base, c.cfgPath, c.changed)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = cliconfig.Logger(c.errOut, cfg.LogLevel)
	c.log.Debug().Interface("config", cfg.Redacted()).Msg("configuration")
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errInfected) {
			log := cliconfig.Logger(os.Stderr, "info")
			log.Error().Err(err).Msg("virusscan")
		}
		os.Exit(1)
	}
}
