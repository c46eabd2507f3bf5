// The gameserver command runs the game server and a few tools that talk to
// it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ConfigFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:          "gameserver",
		Short:        "Framed TCP game server and related tools",
		RunE:         ServeCommand,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", "", "Path to the directory containing gameserver.yaml")

	pingCmd.Flags().StringVarP(&AddressFlag, "addr", "a", "127.0.0.1:7777", "Address of the server to ping")
	pingCmd.Flags().IntVarP(&CountFlag, "count", "n", 4, "Number of heartbeats to send")

	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(pingCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
