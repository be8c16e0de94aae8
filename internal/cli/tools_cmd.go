package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"wpmcp/internal/config"
	"wpmcp/internal/dependency"
	"wpmcp/internal/logging"
)

func (a *app) newToolsCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a profile registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := &config.Overrides{}
			if cmd.Flags().Changed("profile") {
				o.ToolProfile = &profile
			}
			cfg, err := a.loadConfig(o, false)
			if err != nil {
				return err
			}
			c, err := dependency.New(cmd.Context(), cfg, logging.Discard())
			if err != nil {
				return err
			}
			defer func() {
				_ = c.Close()
			}()

			descriptors := c.Dispatcher().Registry().List()
			if a.flags.JSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"profile": cfg.Tools.Profile,
					"tools":   descriptors,
				})
			}
			s := newStyles(a.out, false)
			fmt.Fprintln(a.out, s.sectionHeader(fmt.Sprintf("Profile %s (%d tools)", cfg.Tools.Profile, len(descriptors))))
			for _, d := range descriptors {
				fmt.Fprintln(a.out, s.toolLine(d.Name, d.Description))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "search", "tool profile: search|direct|legacy")
	return cmd
}
