package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tenantplane/internal/runner"
	"tenantplane/pkg/api"
)

// columnSplit matches the two-plus-space gaps between table columns in
// `accounts list` output.
var columnSplit = regexp.MustCompile(`\s{2,}`)

// ParseAccountsTable parses the tabular `accounts list` output. The header
// is expected to contain at least USER and ENABLED columns; CAPABILITIES is
// optional. Malformed lines are skipped.
func ParseAccountsTable(text string) []api.Account {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	header := columnSplit.Split(lines[0], -1)
	idxUser := columnIndex(header, "USER")
	idxCaps := columnIndex(header, "CAPABILITIES")
	idxEnabled := columnIndex(header, "ENABLED")

	var out []api.Account
	for _, line := range lines[1:] {
		parts := columnSplit.Split(line, -1)
		if idxUser < 0 || idxEnabled < 0 || len(parts) < 2 {
			parts = strings.Fields(line)
			if len(parts) < 2 {
				continue
			}
		}

		acc := api.Account{}
		if idxUser >= 0 && idxUser < len(parts) {
			acc.User = parts[idxUser]
		} else {
			acc.User = parts[0]
		}
		if idxCaps >= 0 && idxCaps < len(parts) {
			acc.Capabilities = parseCapabilities(parts[idxCaps])
		}
		if idxEnabled >= 0 && idxEnabled < len(parts) {
			acc.Enabled = strings.EqualFold(parts[idxEnabled], "true")
		} else {
			acc.Enabled = strings.EqualFold(parts[len(parts)-1], "true")
		}
		out = append(out, acc)
	}
	return out
}

// parseCapabilities normalizes "[login,admin]" into a string slice.
func parseCapabilities(s string) []string {
	inner := strings.Trim(strings.TrimSpace(s), "[]")
	if inner == "" {
		return nil
	}
	var caps []string
	for _, c := range regexp.MustCompile(`[,\s]+`).Split(inner, -1) {
		if c != "" {
			caps = append(caps, c)
		}
	}
	return caps
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// ListAccounts runs `accounts list` and parses the table.
func (e *Engine) ListAccounts(ctx context.Context) ([]api.Account, error) {
	res := e.run.Run(ctx, runner.Spec{
		Argv:    e.everestArgs("accounts", "list"),
		Timeout: e.cfg.DefaultTimeout,
	})
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("accounts list failed (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseAccountsTable(res.Stdout), nil
}

// SetAccountEnabled enables or disables a CLI account.
func (e *Engine) SetAccountEnabled(ctx context.Context, username string, enabled bool) error {
	sub := "disable"
	if enabled {
		sub = "enable"
	}
	res := e.run.Run(ctx, runner.Spec{
		Argv:    e.everestArgs("accounts", sub, "-u", username),
		Timeout: e.cfg.DefaultTimeout,
		TTY:     e.cfg.ForcePTY,
	})
	if res.ExitCode != 0 {
		return fmt.Errorf("accounts %s failed for %s (exit %d): %s", sub, username, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	e.writeAudit(ctx, "account_"+sub, username, map[string]any{"user": username})
	return nil
}

// SetAccountPassword rotates an account password. The password travels only
// in the live argv; step records and errors never include it.
func (e *Engine) SetAccountPassword(ctx context.Context, username, password string) error {
	res := e.run.Run(ctx, runner.Spec{
		Argv:    e.everestArgs("accounts", "set-password", "-u", username, "-p", password),
		Timeout: e.cfg.DefaultTimeout,
		TTY:     e.cfg.ForcePTY,
	})
	if res.ExitCode != 0 {
		return fmt.Errorf("accounts set-password failed for %s (exit %d): %s", username, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	e.writeAudit(ctx, "account_set_password", username, map[string]any{"user": username})
	return nil
}
