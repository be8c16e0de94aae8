package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wpmcp/internal/config"
	"wpmcp/internal/dependency"
	"wpmcp/internal/tool"
)

func (a *app) newCallCmd() *cobra.Command {
	var (
		rawArgs string
		profile string
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Run one tool in-process and print its result",
		Example: `  wpmcp call search --args '{"query":"school vouchers"}'
  wpmcp call get_bill_text --profile direct --args '{"p_bill_id":1234}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := &config.Overrides{}
			if cmd.Flags().Changed("profile") {
				o.ToolProfile = &profile
			}
			return a.runCall(cmd, args[0], rawArgs, o)
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "tool arguments as a JSON object")
	cmd.Flags().StringVar(&profile, "profile", "search", "tool profile: search|direct|legacy")
	return cmd
}

func (a *app) runCall(cmd *cobra.Command, name, rawArgs string, o *config.Overrides) error {
	var args map[string]any
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	cfg, err := a.loadConfig(o, false)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, err := dependency.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	res, err := c.Dispatcher().Invoke(ctx, name, args)
	if err != nil {
		var invErr *tool.InvocationError
		if errors.As(err, &invErr) && len(invErr.Issues) > 0 {
			s := newStyles(a.errOut, a.flags.JSON)
			for _, issue := range invErr.Issues {
				fmt.Fprintln(a.errOut, s.dim(fmt.Sprintf("  %s: %s", issue.Field, issue.Reason)))
			}
		}
		return err
	}

	if a.flags.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		for _, block := range res.Content {
			fmt.Fprintln(a.out, block.Text)
		}
	}
	if res.IsError || res.Soft {
		return errors.New("tool reported an error result")
	}
	return nil
}
