package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier-relay/internal/client"
)

// listen: stay connected and print messages as they arrive. Messages
// queued while offline come through first.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and print messages as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			priv, err := store.LoadKey(profile.Handle, profile.DeviceID)
			if err != nil {
				return fmt.Errorf("no local key for %s/%s: %w", profile.Handle, profile.DeviceID, err)
			}

			sock, err := api.Connect(cmd.Context(), profile.DeviceID)
			if err != nil {
				return err
			}
			defer sock.Close()

			fmt.Printf("Listening as %s/%s. Ctrl+C to stop.\n", profile.Handle, profile.DeviceID)
			for {
				ev, err := sock.Next(cmd.Context())
				if err != nil {
					return err
				}
				switch ev.Type {
				case client.EventDelivery:
					printDelivery(ev, priv)
				case client.EventError:
					fmt.Printf("relay error: %s\n", ev.Code)
				}
			}
		},
	}
}
