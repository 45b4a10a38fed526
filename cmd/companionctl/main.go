package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const defaultAPI = "http://localhost:8080"

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "companionctl",
		Short:         "CLI client for the companion REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	api := os.Getenv("COMPANION_API_URL")
	if api == "" {
		api = defaultAPI
	}
	root.PersistentFlags().StringVarP(&c.api, "api", "a", api, "Companion service base URL (env COMPANION_API_URL)")

	root.AddCommand(
		c.healthCmd(),
		c.modelsCmd(),
		c.personasCmd(),
		c.sessionsCmd(),
		c.chatCmd(),
		c.summaryCmd(),
		c.memoryCmd(),
		c.alertsCmd(),
		c.toolsCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
