package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier-relay/internal/domain/envelope"
)

// history <peer>: fetch the stored conversation and decrypt what this
// device holds a key for. Messages this identity sent are sealed for
// the peer's devices, so only their metadata is shown.
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <peer>",
		Short: "Show the stored conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			priv, err := store.LoadKey(profile.Handle, profile.DeviceID)
			if err != nil {
				return fmt.Errorf("no local key for %s/%s: %w", profile.Handle, profile.DeviceID, err)
			}

			res, err := api.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(res.Records) == 0 {
				fmt.Println("No messages yet")
				return nil
			}
			for _, rec := range res.Records {
				if rec.Sender == profile.Handle {
					fmt.Printf("%s  you -> %s  (sealed for their devices)\n", rec.CreatedAt, rec.Recipient)
					continue
				}
				plain, err := envelope.OpenAs(rec.Envelope, profile.DeviceID, priv)
				if err != nil {
					fmt.Printf("%s  [%s]  (undecryptable: %v)\n", rec.CreatedAt, rec.Sender, err)
					continue
				}
				fmt.Printf("%s  [%s]  %s\n", rec.CreatedAt, rec.Sender, plain)
			}
			return nil
		},
	}
}
