package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage provisioned tenant accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		resp, err := client.ListAccounts()
		if err != nil {
			cmd.Printf("Failed to list accounts: %v\n", err)
			return
		}
		if len(resp.Accounts) == 0 {
			cmd.Println("No accounts found")
			return
		}

		cmd.Printf("%-24s %-10s %s\n", "USER", "ENABLED", "CAPABILITIES")
		for _, a := range resp.Accounts {
			enabled := "no"
			if a.Enabled {
				enabled = "yes"
			}
			cmd.Printf("%-24s %-10s %s\n", a.User, enabled, strings.Join(a.Capabilities, ","))
		}
	},
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable [username]",
	Short: "Enable an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setAccountEnabled(cmd, args[0], true)
	},
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable [username]",
	Short: "Disable an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setAccountEnabled(cmd, args[0], false)
	},
}

func setAccountEnabled(cmd *cobra.Command, username string, enabled bool) {
	client := clientFromConfig(cmd)
	if client == nil {
		return
	}

	if err := client.SetAccountEnabled(username, enabled); err != nil {
		cmd.Printf("Failed to update account: %v\n", err)
		return
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	cmd.Printf("Account %s %s\n", username, state)
}

var accountsPassword string

var accountsSetPasswordCmd = &cobra.Command{
	Use:   "set-password [username]",
	Short: "Set an account password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}

		if err := client.SetAccountPassword(args[0], accountsPassword); err != nil {
			cmd.Printf("Failed to set password: %v\n", err)
			return
		}
		cmd.Printf("Password updated for %s\n", args[0])
	},
}

func init() {
	accountsSetPasswordCmd.Flags().StringVarP(&accountsPassword, "password", "p", "", "new password (required, min 8 characters)")
	accountsSetPasswordCmd.MarkFlagRequired("password")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsEnableCmd)
	accountsCmd.AddCommand(accountsDisableCmd)
	accountsCmd.AddCommand(accountsSetPasswordCmd)
	rootCmd.AddCommand(accountsCmd)
}
