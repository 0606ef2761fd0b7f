// cmd/migratectl/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

var (
	serverURL string
	apiKey    string
	assumeYes bool
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migratectl",
		Short:         "Drive Neon database migrations from the terminal",
		Long:          `migratectl talks to a nebula-migrate server with a personal API key and runs the same migration workflow as the web panel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("MIGRATECTL_SERVER", defaultServer), "nebula-migrate server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("MIGRATECTL_API_KEY"), "personal API key (nmk_...)")

	root.AddCommand(
		newConfigsCmd(),
		newTablesCmd(),
		newCompareCmd(),
		newMigrateCmd(),
		newVerifyCmd(),
		newBranchesCmd(),
		newCleanupCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiClient builds a client from the global flags.
func apiClient() (*client, error) {
	return newClient(serverURL, apiKey)
}
