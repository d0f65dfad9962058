// gatejohn is the multi-tenant OAuth2/OIDC gateway: grant evaluation, token
// lifecycle and domain configuration sync.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

func main() {
	// .env es best-effort: en producción la config llega por entorno real.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "gatejohn",
		Short:         "OAuth2/OIDC authorization gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (optional)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("gatejohn", version)
		},
	}
}
