package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"wpmcp/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}
	cmd.AddCommand(a.newConfigPrintCmd(), a.newConfigInitCmd())
	return cmd
}

func (a *app) newConfigPrintCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective config with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Unvalidated so a broken setup can still be inspected.
			cfg, err := a.loadConfig(nil, true)
			if err != nil {
				return err
			}
			out, err := config.Marshal(cfg, strings.ToLower(format))
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml|toml")
	return cmd
}

func (a *app) newConfigInitCmd() *cobra.Command {
	var (
		format string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.runConfigInit(strings.ToLower(format), force)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "file format: yaml|toml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) runConfigInit(format string, force bool) error {
	var (
		name    string
		content []byte
	)
	switch format {
	case "yaml", "yml":
		name, content = "wpmcp.yaml", []byte(config.DefaultYAML)
	case "toml":
		cfg := config.Default()
		rendered, err := config.Marshal(&cfg, "toml")
		if err != nil {
			return err
		}
		name, content = "wpmcp.toml", rendered
	default:
		return withExit(ExitConfigInvalid, fmt.Errorf("unsupported format %q (want yaml or toml)", format))
	}

	path := a.flags.ConfigPath
	if path == "" {
		path = name
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.flags.Dir, path)
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if !a.flags.Quiet {
		s := newStyles(a.out, a.flags.JSON)
		fmt.Fprintln(a.out, s.success("Wrote"), path)
		fmt.Fprintln(a.out, s.dim("Secrets stay in the environment: set CAMPAIGN_FINANCE_SUPABASE_URL, CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY and OPENAI_API_KEY."))
	}
	return nil
}
