package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "routemq",
	Short: "RouteMQ — an MQTT-based server-side application framework",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queueWorkCmd)
}
