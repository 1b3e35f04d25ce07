// Command fable runs the novelist agent service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "fable",
		Short: "fable is a tool-using writing agent service",
		Long: "fable serves a conversational novel-writing agent over HTTP: " +
			"streaming responses, confirmation-gated tools and durable conversation history.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $HOME/.fable-config.yaml)")
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
