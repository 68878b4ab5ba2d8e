package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tenantplane/pkg/api"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-tenant quota limits",
}

var (
	limitsMaxClusters int
	limitsMaxDBUsers  int
	limitsEngines     []string
	limitsCPU         float64
	limitsMemoryMb    int64
)

var limitsSetCmd = &cobra.Command{
	Use:   "set [namespace]",
	Short: "Set quota limits for a tenant namespace",
	Long: `Register or replace the quota limits of a tenant namespace. A limit of
zero means unlimited for that dimension.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		req := api.SetLimitsRequest{QuotaLimits: api.QuotaLimits{
			MaxClusters:      limitsMaxClusters,
			MaxDBUsers:       limitsMaxDBUsers,
			AllowedEngines:   limitsEngines,
			CPULimitCores:    limitsCPU,
			MemoryLimitBytes: limitsMemoryMb * 1024 * 1024,
		}}
		quota, err := client.SetLimits(args[0], req)
		if err != nil {
			cmd.Printf("Failed to set limits: %v\n", err)
			return
		}
		printQuota(cmd, quota)
	},
}

var quotaCmd = &cobra.Command{
	Use:   "quota [namespace]",
	Short: "Show quota limits and usage for a tenant namespace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		quota, err := client.Quota(args[0])
		if err != nil {
			cmd.Printf("Failed to get quota: %v\n", err)
			return
		}
		printQuota(cmd, quota)
	},
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List tenant namespaces with limits and usage",
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		tenants, err := client.ListTenants()
		if err != nil {
			cmd.Printf("Failed to list tenants: %v\n", err)
			return
		}
		if len(tenants) == 0 {
			cmd.Println("No tenants found")
			return
		}

		cmd.Printf("%-24s %-12s %-12s %s\n", "NAMESPACE", "CLUSTERS", "DB USERS", "ENGINES")
		for _, t := range tenants {
			cmd.Printf("%-24s %-12s %-12s %s\n", t.Namespace,
				formatCounter(t.Usage.ClustersCount, t.Limits.MaxClusters),
				formatCounter(t.Usage.DBUsersCount, t.Limits.MaxDBUsers),
				formatEngines(t.Limits.AllowedEngines))
		}
	},
}

func printQuota(cmd *cobra.Command, quota *api.QuotaResponse) {
	cmd.Printf("%sNamespace:%s  %s\n", colorBold, colorReset, quota.Namespace)
	cmd.Printf("%sClusters:%s   %s\n", colorDim, colorReset, formatCounter(quota.Usage.ClustersCount, quota.Limits.MaxClusters))
	cmd.Printf("%sDB users:%s   %s\n", colorDim, colorReset, formatCounter(quota.Usage.DBUsersCount, quota.Limits.MaxDBUsers))
	cmd.Printf("%sCPU:%s        %s\n", colorDim, colorReset, formatFloatCounter(quota.Usage.CPUUsed, quota.Limits.CPULimitCores))
	cmd.Printf("%sMemory:%s     %s\n", colorDim, colorReset, formatMemory(quota.Usage.MemoryUsed, quota.Limits.MemoryLimitBytes))
	cmd.Printf("%sEngines:%s    %s\n", colorDim, colorReset, formatEngines(quota.Limits.AllowedEngines))
}

func formatCounter(used, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d/∞", used)
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

func formatFloatCounter(used, limit float64) string {
	if limit <= 0 {
		return fmt.Sprintf("%.2f/∞", used)
	}
	return fmt.Sprintf("%.2f/%.2f", used, limit)
}

func formatMemory(used, limit int64) string {
	if limit <= 0 {
		return fmt.Sprintf("%dMi/∞", used/(1024*1024))
	}
	return fmt.Sprintf("%dMi/%dMi", used/(1024*1024), limit/(1024*1024))
}

func formatEngines(engines []string) string {
	if len(engines) == 0 {
		return "any"
	}
	return strings.Join(engines, ",")
}

func init() {
	limitsSetCmd.Flags().IntVar(&limitsMaxClusters, "max-clusters", 0, "max database clusters (0 = unlimited)")
	limitsSetCmd.Flags().IntVar(&limitsMaxDBUsers, "max-db-users", 0, "max database users (0 = unlimited)")
	limitsSetCmd.Flags().StringSliceVar(&limitsEngines, "engines", nil, "allowed engines (empty = any)")
	limitsSetCmd.Flags().Float64Var(&limitsCPU, "cpu-limit", 0, "CPU core limit (0 = unlimited)")
	limitsSetCmd.Flags().Int64Var(&limitsMemoryMb, "memory-limit-mb", 0, "memory limit in MB (0 = unlimited)")

	limitsCmd.AddCommand(limitsSetCmd)
	rootCmd.AddCommand(limitsCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(tenantsCmd)
}
