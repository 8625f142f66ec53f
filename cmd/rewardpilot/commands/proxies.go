package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"RewardPilot/internal/proxy"
)

func proxiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxies",
		Short: "Validate the proxy list and show which identity index maps to which proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := proxy.LoadList(cfg.Inputs.ProxyFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "%s: no proxies, all identities connect directly\n", cfg.Inputs.ProxyFile)
				return nil
			}
			invalid := 0
			for i, entry := range entries {
				d, err := proxy.Parse(entry)
				if err != nil {
					invalid++
					fmt.Fprintf(out, "%4d  invalid  %v\n", i, err)
					continue
				}
				fmt.Fprintf(out, "%4d  %-7s  %s\n", i, d.Scheme, d.Redacted())
			}
			fmt.Fprintf(out, "%d entries, %d invalid\n", len(entries), invalid)
			return nil
		},
	}
}
