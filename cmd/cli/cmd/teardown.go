package cmd

import (
	"github.com/spf13/cobra"

	"tenantplane/pkg/api"
)

var (
	teardownUsername  string
	teardownNamespace string
	teardownWait      bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove a tenant user and namespace",
	Long: `Submit a teardown job that removes the tenant namespace, deletes the
tenant account and cleans up the tenant RBAC rules. Teardown is idempotent:
targets that are already gone are skipped, not failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		submitted, err := client.Teardown(api.TeardownRequest{
			Username:  teardownUsername,
			Namespace: teardownNamespace,
		})
		if err != nil {
			cmd.Printf("Teardown failed: %v\n", err)
			return
		}
		cmd.Printf("Job submitted: %s\n", submitted.JobID)

		if !teardownWait {
			cmd.Printf("Poll with: tenantctl status %s\n", submitted.JobID)
			return
		}
		waitAndPrintResult(cmd, client, submitted.JobID)
	},
}

func init() {
	teardownCmd.Flags().StringVarP(&teardownUsername, "username", "u", "", "tenant username (required)")
	teardownCmd.Flags().StringVarP(&teardownNamespace, "namespace", "n", "", "namespace (defaults to the username)")
	teardownCmd.Flags().BoolVarP(&teardownWait, "wait", "w", false, "wait for the job to finish and print the result")
	teardownCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(teardownCmd)
}
