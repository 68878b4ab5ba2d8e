// Package main is the entry point for the tenantctl CLI.
// tenantctl is the operator terminal tool for the tenantplane API.
package main

import (
	"os"

	"tenantplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
