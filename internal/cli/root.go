// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the sharevault command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/internal/server"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
)

// app carries the state of one invocation: flag and environment values
// resolved through viper, and the runtime built from them.
type app struct {
	v   *viper.Viper
	srv *server.Server
}

// NewRootCommand returns the sharevault command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *app) {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "sharevault",
		Short: "Split secrets into encrypted threshold shares",
		Long: `sharevault protects a secret such as a media URL by splitting it into
n Shamir shares, any k of which recover it. Each share is encrypted under
a 256-bit key or a key derived from a password, and the shares travel
together as one bundle payload.

Configuration is read from --config, then SHAREVAULT_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.StringP("output", "o", "text", "output format (text, json, table)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("storage", "", "session storage backend (memory, file, azsecrets)")
	flags.String("storage-path", "", "directory of the file storage backend")
	a.bind(flags, "config", "config")
	a.bind(flags, "output", "output")
	a.bind(flags, "verbose", "verbose")
	a.bind(flags, "storage", "storage.backend")
	a.bind(flags, "storage-path", "storage.path")

	rootCmd.AddCommand(
		a.keygenCmd(),
		a.deriveCmd(),
		a.splitCmd(),
		a.combineCmd(),
		a.inspectCmd(),
		a.verifyCmd(),
		a.sessionCmd(),
		a.serveCmd(),
		a.versionCmd(),
	)
	return rootCmd, a
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root, a := newRoot()
	return a.execute(root)
}

func (a *app) execute(root *cobra.Command) int {
	cmd, err := root.ExecuteC()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.handleError(cmd, err)
		return 1
	}
	return 0
}

// bind makes flag name readable from viper as key, which also maps it to
// the SHAREVAULT_<KEY> environment variable.
func (a *app) bind(flags *pflag.FlagSet, name, key string) {
	if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("cli: bind flag %s: %v", name, err))
	}
}

// overrides maps viper keys onto configuration fields.
var overrides = []struct {
	key   string
	apply func(*config.Config, *viper.Viper, string)
}{
	{"storage.backend", func(c *config.Config, v *viper.Viper, k string) { c.Storage.Backend = v.GetString(k) }},
	{"storage.path", func(c *config.Config, v *viper.Viper, k string) { c.Storage.Path = v.GetString(k) }},
	{"sharing.threshold", func(c *config.Config, v *viper.Viper, k string) { c.Sharing.Threshold = v.GetInt(k) }},
	{"sharing.total", func(c *config.Config, v *viper.Viper, k string) { c.Sharing.Total = v.GetInt(k) }},
	{"sharing.prime", func(c *config.Config, v *viper.Viper, k string) { c.Sharing.Prime = v.GetString(k) }},
	{"cipher.algorithm", func(c *config.Config, v *viper.Viper, k string) { c.Cipher.Algorithm = v.GetString(k) }},
	{"cipher.ttl", func(c *config.Config, v *viper.Viper, k string) { c.Cipher.TTL = v.GetDuration(k) }},
	{"url.validate", func(c *config.Config, v *viper.Viper, k string) { c.URL.Validate = v.GetBool(k) }},
	{"server.host", func(c *config.Config, v *viper.Viper, k string) { c.Server.Host = v.GetString(k) }},
	{"server.port", func(c *config.Config, v *viper.Viper, k string) { c.Server.Port = v.GetInt(k) }},
	{"server.unix_socket", func(c *config.Config, v *viper.Viper, k string) { c.Server.UnixSocket = v.GetString(k) }},
}

// config loads the config file and applies flag and environment
// overrides on top.
func (a *app) config() (*config.Config, error) {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if a.v.IsSet(o.key) {
			o.apply(cfg, a.v, o.key)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime builds the server components once per invocation. Commands other
// than serve log warnings only, unless --verbose is given.
func (a *app) runtime(ctx context.Context, cmd *cobra.Command) (*server.Server, error) {
	if a.srv != nil {
		return a.srv, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	level := logging.LevelWarn
	if a.v.GetBool("verbose") {
		level = logging.LevelDebug
	}
	logger := logging.New(&logging.Config{
		Level:  level,
		Format: strings.ToLower(cfg.Logging.Format),
		Output: cmd.ErrOrStderr(),
	})

	a.srv, err = server.New(ctx, cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		return nil, err
	}
	return a.srv, nil
}

func (a *app) orchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, error) {
	srv, err := a.runtime(cmd.Context(), cmd)
	if err != nil {
		return nil, err
	}
	return srv.Orchestrator(), nil
}

func (a *app) close() error {
	if a.srv == nil {
		return nil
	}
	err := a.srv.Close()
	a.srv = nil
	return err
}

func (a *app) printer(w io.Writer) *Printer {
	return NewPrinter(a.v.GetString("output"), w)
}

// printVerbose writes to stderr when --verbose is set.
func (a *app) printVerbose(cmd *cobra.Command, format string, args ...any) {
	if a.v.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}

// handleError prints err in the selected output format, preceded by the
// command usage when the arguments were wrong.
func (a *app) handleError(cmd *cobra.Command, err error) {
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
	}
	_ = a.printer(cmd.ErrOrStderr()).PrintError(err)
}

// usageError reports invalid command line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
