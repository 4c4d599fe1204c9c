package commands

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courier-relay/internal/client"
	"courier-relay/internal/domain/envelope"
)

// send <peer> <message>: look up the peer's device keys, seal one
// envelope for all of them, relay it, and wait for the receipt.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> <message>...",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			peer := args[0]
			msg := []byte(strings.Join(args[1:], " "))

			dir, err := api.Devices(cmd.Context(), peer)
			if err != nil {
				return err
			}
			keys := make(map[string]*rsa.PublicKey, len(dir.Devices))
			for _, d := range dir.Devices {
				pub, err := envelope.ParsePublicKey(d.PublicKeyPEM)
				if err != nil {
					return fmt.Errorf("device %s has an unusable key: %w", d.DeviceID, err)
				}
				keys[d.DeviceID] = pub
			}

			env, err := envelope.SealFor(msg,
				envelope.Address{Identity: profile.Handle, Device: profile.DeviceID},
				peer, keys)
			if err != nil {
				return err
			}

			sock, err := api.Connect(cmd.Context(), profile.DeviceID)
			if err != nil {
				return err
			}
			defer sock.Close()

			if err := sock.Send(env); err != nil {
				return err
			}

			// Queued messages for this device drain on connect; show
			// them rather than dropping them on the floor.
			priv, _ := store.LoadKey(profile.Handle, profile.DeviceID)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			for {
				ev, err := sock.Next(ctx)
				if err != nil {
					return fmt.Errorf("waiting for receipt: %w", err)
				}
				switch ev.Type {
				case client.EventReceipt:
					fmt.Printf("Sent to %s (%d device(s) live, rest queued)\n", ev.To, ev.DeliveredTo)
					return nil
				case client.EventDelivery:
					printDelivery(ev, priv)
				case client.EventError:
					return fmt.Errorf("relay refused the message: %w", client.ProtocolError(ev.Code))
				}
			}
		},
	}
	return cmd
}

func printDelivery(ev client.Event, priv *rsa.PrivateKey) {
	from := ev.Envelope.From.Identity
	if priv == nil {
		fmt.Printf("[%s] (no local key to decrypt)\n", from)
		return
	}
	plain, err := envelope.Open(*ev.Envelope, priv)
	if err != nil {
		fmt.Printf("[%s] (undecryptable: %v)\n", from, err)
		return
	}
	fmt.Printf("[%s] %s\n", from, plain)
}
