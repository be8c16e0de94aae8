package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wpmcp/internal/client"
	"wpmcp/internal/config"
	"wpmcp/internal/logging"
)

// Process exit codes.
const (
	ExitSuccess       = 0
	ExitGenericError  = 1
	ExitConfigInvalid = 2
	ExitBindFailure   = 4
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	Dir        string
	ConfigPath string
	JSON       bool
	Quiet      bool
	LogLevel   string
	NoDotEnv   bool
}

// app carries the output streams and global flags of one command tree so
// tests can build isolated trees.
type app struct {
	out    io.Writer
	errOut io.Writer
	flags  GlobalFlags
}

// exitError attaches a process exit code to a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitGenericError
}

// NewRootCmd builds the wpmcp command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "wpmcp",
		Short:         "MCP server for campaign-finance and legislative data",
		Long:          "wpmcp exposes campaign-finance Supabase RPC functions, vector search and read-only SQL as MCP tools over streamable HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.Dir, "dir", ".", "directory holding the config file and .env files")
	pf.StringVar(&a.flags.ConfigPath, "config", "", "config file path (default: first of wpmcp.yaml, wpmcp.yml, wpmcp.toml)")
	pf.BoolVar(&a.flags.JSON, "json", false, "emit NDJSON events and JSON output for automation")
	pf.BoolVar(&a.flags.Quiet, "quiet", false, "reduce output")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")
	pf.BoolVar(&a.flags.NoDotEnv, "no-dotenv", false, "do not read .env.local and .env")

	root.AddCommand(
		a.newServeCmd(),
		a.newCheckCmd(),
		a.newCallCmd(),
		a.newToolsCmd(),
		a.newConfigCmd(),
		a.newVersionCmd(),
	)
	return root
}

// Execute runs the CLI against the process streams and returns the exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd := NewRootCmd(out, errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		s := newStyles(errOut, false)
		fmt.Fprintln(errOut, s.errPrefix(), strings.TrimPrefix(err.Error(), "ERROR: "))
		if hint := client.ActionableMessageFromError(err); hint != "" {
			fmt.Fprintln(errOut, s.dim("  "+hint))
		}
	}
	return exitCode(err)
}

// loadConfig resolves the effective config and applies the global flags on
// top of o. Failures carry ExitConfigInvalid.
func (a *app) loadConfig(o *config.Overrides, skipValidate bool) (*config.Config, error) {
	if o == nil {
		o = &config.Overrides{}
	}
	if a.flags.LogLevel != "" {
		level := a.flags.LogLevel
		o.LogLevel = &level
	}
	if a.flags.JSON {
		format := "json"
		o.LogFormat = &format
	}
	cfg, err := config.Load(config.Options{
		ConfigPath:   a.flags.ConfigPath,
		RootDir:      a.flags.Dir,
		SkipDotEnv:   a.flags.NoDotEnv,
		SkipValidate: skipValidate,
		Overrides:    o,
	})
	if err != nil {
		return nil, withExit(ExitConfigInvalid, err)
	}
	return cfg, nil
}

// newLogger writes to errOut so stdout stays reserved for command output.
func (a *app) newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if a.flags.Quiet && a.flags.LogLevel == "" {
		level = "warn"
	}
	logger, err := logging.New(a.errOut, level, cfg.Log.Format)
	if err != nil {
		return nil, withExit(ExitConfigInvalid, fmt.Errorf("CONFIG_INVALID: %w", err))
	}
	return logger, nil
}
