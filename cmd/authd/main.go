// Command authd serves the tenantauth HTTP API and carries the operational
// subcommands around it: schema migration, password hashing and tenant
// bootstrap.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/tenantauth/internal/config"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "authd",
		Short:         "Multi-tenant authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("AUTH_CONFIG"), "YAML config file (env AUTH_CONFIG)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newHashPasswordCmd(),
		newCreateUserCmd(g),
		newAdminCmd(g),
		newCheckCmd(g),
	)
	return root
}

func (g *globalFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return nil, err
	}
	return config.Load(g.configPath)
}
