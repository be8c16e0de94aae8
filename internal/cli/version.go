package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wpmcp/internal/config"
	"wpmcp/internal/protocol"
)

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.flags.JSON {
				a.emitNDJSON("info", "version", map[string]string{
					"name":             protocol.ServerName,
					"version":          protocol.ServerVersion,
					"protocol_version": config.DefaultProtocolVersion,
				})
				return nil
			}
			fmt.Fprintf(a.out, "wpmcp %s (protocol %s)\n", protocol.ServerVersion, config.DefaultProtocolVersion)
			return nil
		},
	}
}
