package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tenantplane/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a provisioning job",
	Long: `Retrieve the current state of a bootstrap or teardown job (queued,
running, succeeded, failed) along with its timestamps and summary.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		status, err := client.JobStatus(args[0])
		if err != nil {
			cmd.Printf("Failed to get job status: %v\n", err)
			return
		}
		printStatus(cmd, status)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result [job_id]",
	Short: "Get the result of a finished job",
	Long: `Retrieve the full result of a finished job: masked inputs, the executed
steps with their outputs, and the generated password when one was created.
The server refuses with a conflict while the job is still running.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		result, err := client.JobResult(args[0])
		if err != nil {
			cmd.Printf("Failed to get job result: %v\n", err)
			return
		}
		printResult(cmd, result)
	},
}

func printStatus(cmd *cobra.Command, status *api.JobStatusResponse) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(status.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, status.JobID)
	cmd.Printf("%sStatus:%s    %s\n", colorDim, colorReset, colorizeStatus(status.Status))
	if status.Summary != "" {
		cmd.Printf("%sSummary:%s   %s\n", colorDim, colorReset, status.Summary)
	}
	cmd.Printf("%sCreated:%s   %s\n", colorDim, colorReset, status.CreatedAt.Format("Mon, 02 Jan 2006 15:04:05 MST"))
	cmd.Printf("%sStarted:%s   %s\n", colorDim, colorReset, formatTime(status.StartedAt))
	if status.StartedAt != nil && status.FinishedAt != nil {
		cmd.Printf("%sFinished:%s  %s %s(%s)%s\n", colorDim, colorReset,
			formatTime(status.FinishedAt),
			colorCyan, formatDuration(status.FinishedAt.Sub(*status.StartedAt)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s  %s\n", colorDim, colorReset, formatTime(status.FinishedAt))
	}
}

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorAmber = "\033[33m"
	colorCyan  = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "succeeded":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "running":
		return colorAmber + "⏳" + colorReset
	case "queued":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "succeeded":
		return statusIcon(status) + " " + colorGreen + status + colorReset
	case "failed":
		return statusIcon(status) + " " + colorRed + status + colorReset
	case "running":
		return statusIcon(status) + " " + colorAmber + status + colorReset
	case "queued":
		return statusIcon(status) + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
}
