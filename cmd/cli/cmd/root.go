package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tenantctl",
	Short: "tenantctl is a command line tool for the tenantplane provisioning API",
	Long: `tenantctl is the command-line interface for tenantplane, the multi-tenant
database namespace provisioning service.

tenantplane provisions isolated tenant namespaces on a Kubernetes cluster.
Each provisioning run is an asynchronous job that creates the tenant account,
adds the namespace with the requested database operators, applies resource
quotas, and binds an RBAC role.

Common workflows:

  Provision a tenant:
    tenantctl bootstrap --username alice --operators postgresql --wait

  Tear a tenant down:
    tenantctl teardown --username alice

  Check a job:
    tenantctl status <job-id>
    tenantctl result <job-id>

  Manage quotas:
    tenantctl limits set ns-alice --max-clusters 3 --cpu-limit 8
    tenantctl tenants

  Manage accounts:
    tenantctl accounts list
    tenantctl accounts disable alice

Configuration:
  Set the API endpoint and credentials via flags, environment variables or a
  config file:
    TENANTPLANE_URL        API endpoint (default: http://localhost:8080)
    TENANTPLANE_API_KEY    API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".tenantctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TENANTPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tenantctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "tenantplane API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("api-key", "k", "", "API key for authentication")
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
}

// clientFromConfig builds the API client, failing when no key is configured.
func clientFromConfig(cmd *cobra.Command) *Client {
	key := viper.GetString("api_key")
	if key == "" {
		cmd.Println("API key not found. Set it with --api-key or the TENANTPLANE_API_KEY environment variable")
		return nil
	}
	return NewClient(viper.GetString("url"), key)
}
