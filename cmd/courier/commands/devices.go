package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices <identity>",
		Short: "List an identity's devices and key fingerprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}

			res, err := api.Devices(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Devices of %s:\n", res.Identity)
			for _, d := range res.Devices {
				label := d.Label
				if label == "" {
					label = "-"
				}
				fmt.Printf("  %-16s %-24s %s\n", d.DeviceID, label, d.Fingerprint)
			}
			return nil
		},
	}
}

func presenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presence <identity>",
		Short: "Show which of an identity's devices are online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}

			res, err := api.Presence(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(res.Online) == 0 {
				fmt.Printf("No devices of %s are online\n", res.Identity)
				return nil
			}
			for _, p := range res.Online {
				fmt.Printf("  %-16s online since %s (last seen %s)\n", p.DeviceID, p.ConnectedAt, p.LastSeen)
			}
			return nil
		},
	}
}
