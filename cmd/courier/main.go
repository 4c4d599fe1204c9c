package main

import (
	"os"

	"courier-relay/cmd/courier/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
