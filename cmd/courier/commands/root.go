package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"courier-relay/internal/client"
)

var (
	home     string
	relayURL string

	baseURL string
	store   *client.FileStore
	api     *client.Client
	profile client.Profile
)

func Execute() error {
	root := &cobra.Command{
		Use:   "courier",
		Short: "End-to-end encrypted relay client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".courier")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			store = client.NewFileStore(home)

			if p, err := store.LoadProfile(); err == nil {
				profile = p
			}

			baseURL = relayURL
			if baseURL == "" {
				baseURL = profile.Relay
			}
			if baseURL == "" {
				baseURL = "http://127.0.0.1:8080"
			}

			api = client.New(baseURL)
			if profile.Token != "" {
				api = api.WithToken(profile.Token)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.courier)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")

	root.AddCommand(
		registerCmd(),
		loginCmd(),
		whoamiCmd(),
		devicesCmd(),
		presenceCmd(),
		sendCmd(),
		listenCmd(),
		historyCmd(),
		attachCmd(),
		fetchCmd(),
	)
	return root.Execute()
}

func requireSession() error {
	if profile.Handle == "" || profile.Token == "" {
		return fmt.Errorf("not logged in. run 'courier register' or 'courier login' first")
	}
	return nil
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active identity and device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			fmt.Printf("%s/%s via %s\n", profile.Handle, profile.DeviceID, profile.Relay)
			return nil
		},
	}
}
