package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier-relay/internal/client"
	"courier-relay/internal/domain/envelope"
)

func registerCmd() *cobra.Command {
	var password, displayName, label string
	cmd := &cobra.Command{
		Use:   "register <handle> <device>",
		Short: "Create an identity and enroll this device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, deviceID := args[0], args[1]
			if displayName == "" {
				displayName = handle
			}

			priv, err := envelope.GenerateKeyPair()
			if err != nil {
				return err
			}
			pubPEM, err := envelope.EncodePublicKey(&priv.PublicKey)
			if err != nil {
				return err
			}
			// Key first: a stray key file is harmless, a registered
			// device without its key is not.
			if err := store.SaveKey(handle, deviceID, priv); err != nil {
				return err
			}

			res, err := api.Register(cmd.Context(), client.RegisterParams{
				Handle:       handle,
				Password:     password,
				DisplayName:  displayName,
				DeviceID:     deviceID,
				PublicKeyPEM: pubPEM,
				DeviceLabel:  label,
			})
			if err != nil {
				return err
			}

			err = store.SaveProfile(client.Profile{
				Relay:    baseURL,
				Handle:   handle,
				DeviceID: deviceID,
				Token:    res.Token,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s, device %s\n", handle, deviceID)
			fmt.Printf("Key fingerprint: %s\n", res.Device.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name (default: the handle)")
	cmd.Flags().StringVar(&label, "label", "", "device label")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
