package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier-relay/internal/client"
	"courier-relay/internal/domain/envelope"
)

func loginCmd() *cobra.Command {
	var password, label string
	var newKey bool
	cmd := &cobra.Command{
		Use:   "login <handle> <device>",
		Short: "Authenticate and make this device the active session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, deviceID := args[0], args[1]

			params := client.LoginParams{
				Handle:   handle,
				Password: password,
				DeviceID: deviceID,
			}

			if newKey {
				priv, err := envelope.GenerateKeyPair()
				if err != nil {
					return err
				}
				pubPEM, err := envelope.EncodePublicKey(&priv.PublicKey)
				if err != nil {
					return err
				}
				if err := store.SaveKey(handle, deviceID, priv); err != nil {
					return err
				}
				params.PublicKeyPEM = pubPEM
				params.DeviceLabel = label
			} else if _, err := store.LoadKey(handle, deviceID); err != nil {
				return fmt.Errorf("no local key for %s/%s; pass --new-key to enroll this machine", handle, deviceID)
			}

			res, err := api.Login(cmd.Context(), params)
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

			fmt.Printf("Logged in as %s/%s\n", handle, deviceID)
			if newKey {
				fmt.Printf("New key fingerprint: %s\n", res.Device.Fingerprint)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&label, "label", "", "device label (with --new-key)")
	cmd.Flags().BoolVar(&newKey, "new-key", false, "generate a fresh device key and register it")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
