package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tenantplane/pkg/api"
)

var (
	bootstrapUsername      string
	bootstrapNamespace     string
	bootstrapOperators     []string
	bootstrapTakeOwnership bool
	bootstrapPassword      string
	bootstrapCPU           int
	bootstrapRAM           int
	bootstrapDisk          int
	bootstrapMaxClusters   int
	bootstrapMaxDBUsers    int
	bootstrapWait          bool
)

const waitPollInterval = 2 * time.Second

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Provision a tenant user and namespace",
	Long: `Submit a bootstrap job that creates a tenant account, adds its namespace
with the requested database operators, applies a resource quota and binds
the tenant RBAC role.

The job runs asynchronously; the command prints the job ID to poll with
"tenantctl status". With --wait the command polls until the job finishes
and prints the full result, including the generated password when no
password was supplied.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		req := api.BootstrapRequest{
			Username:      bootstrapUsername,
			Namespace:     bootstrapNamespace,
			TakeOwnership: bootstrapTakeOwnership,
			Password:      bootstrapPassword,
			Resources: api.Resources{
				CPUCores: bootstrapCPU,
				RAMMb:    bootstrapRAM,
				DiskGb:   bootstrapDisk,
			},
		}
		for _, op := range bootstrapOperators {
			switch strings.ToLower(strings.TrimSpace(op)) {
			case "postgresql", "postgres", "pg":
				req.Operators.PostgreSQL = true
			case "mysql":
				req.Operators.MySQL = true
			case "mongodb", "mongo":
				req.Operators.MongoDB = true
			default:
				cmd.Printf("Unknown operator %q (expected postgresql, mysql or mongodb)\n", op)
				return
			}
		}
		if bootstrapMaxClusters > 0 || bootstrapMaxDBUsers > 0 {
			req.Quota = &api.QuotaLimits{
				MaxClusters: bootstrapMaxClusters,
				MaxDBUsers:  bootstrapMaxDBUsers,
			}
		}

		submitted, err := client.Bootstrap(req)
		if err != nil {
			cmd.Printf("Bootstrap failed: %v\n", err)
			return
		}
		cmd.Printf("Job submitted: %s\n", submitted.JobID)

		if !bootstrapWait {
			cmd.Printf("Poll with: tenantctl status %s\n", submitted.JobID)
			return
		}
		waitAndPrintResult(cmd, client, submitted.JobID)
	},
}

// waitAndPrintResult polls the job until it reaches a terminal status, then
// fetches and prints the result.
func waitAndPrintResult(cmd *cobra.Command, client *Client, jobID string) {
	for {
		status, err := client.JobStatus(jobID)
		if err != nil {
			cmd.Printf("Failed to get job status: %v\n", err)
			return
		}
		if status.Status == "succeeded" || status.Status == "failed" {
			break
		}
		time.Sleep(waitPollInterval)
	}

	result, err := client.JobResult(jobID)
	if err != nil {
		cmd.Printf("Failed to get job result: %v\n", err)
		return
	}
	printResult(cmd, result)
}

func printResult(cmd *cobra.Command, result *api.JobResultResponse) {
	cmd.Printf("%s %sJob %s%s\n", statusIcon(result.Status), colorBold, result.JobID, colorReset)
	cmd.Printf("%sStatus:%s   %s\n", colorDim, colorReset, colorizeStatus(result.Status))
	if result.Summary != "" {
		cmd.Printf("%sSummary:%s  %s\n", colorDim, colorReset, result.Summary)
	}
	if len(result.Steps) > 0 {
		cmd.Println("Steps:")
		for _, step := range result.Steps {
			icon := colorGreen + "✓" + colorReset
			if step.ExitCode != 0 {
				icon = colorRed + "✗" + colorReset
			}
			cmd.Printf("  %s %-22s exit=%d", icon, step.Name, step.ExitCode)
			if step.StartedAt != nil && step.FinishedAt != nil {
				cmd.Printf(" %s(%s)%s", colorDim, formatDuration(step.FinishedAt.Sub(*step.StartedAt)), colorReset)
			}
			cmd.Println()
			if step.ExitCode != 0 && step.Stderr != "" {
				cmd.Printf("      %s%s%s\n", colorRed, strings.TrimSpace(step.Stderr), colorReset)
			}
		}
	}
	if result.Password != "" {
		cmd.Printf("%sGenerated password:%s %s\n", colorDim, colorReset, result.Password)
		cmd.Println("Store it now; it is not persisted and cannot be retrieved again.")
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	bootstrapCmd.Flags().StringVarP(&bootstrapUsername, "username", "u", "", "tenant username (required)")
	bootstrapCmd.Flags().StringVarP(&bootstrapNamespace, "namespace", "n", "", "namespace (defaults to the username)")
	bootstrapCmd.Flags().StringSliceVar(&bootstrapOperators, "operators", []string{"postgresql"}, "database operators to enable (postgresql, mysql, mongodb)")
	bootstrapCmd.Flags().BoolVar(&bootstrapTakeOwnership, "take-ownership", false, "take ownership of an existing namespace")
	bootstrapCmd.Flags().StringVar(&bootstrapPassword, "password", "", "account password (generated when omitted)")
	bootstrapCmd.Flags().IntVar(&bootstrapCPU, "cpu", 0, "namespace CPU cores (server default when 0)")
	bootstrapCmd.Flags().IntVar(&bootstrapRAM, "ram", 0, "namespace RAM in MB (server default when 0)")
	bootstrapCmd.Flags().IntVar(&bootstrapDisk, "disk", 0, "namespace disk in GB (server default when 0)")
	bootstrapCmd.Flags().IntVar(&bootstrapMaxClusters, "max-clusters", 0, "quota: max database clusters (0 = unlimited)")
	bootstrapCmd.Flags().IntVar(&bootstrapMaxDBUsers, "max-db-users", 0, "quota: max database users (0 = unlimited)")
	bootstrapCmd.Flags().BoolVarP(&bootstrapWait, "wait", "w", false, "wait for the job to finish and print the result")
	bootstrapCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(bootstrapCmd)
}
