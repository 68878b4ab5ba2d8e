package runner

import (
	"context"
	"strings"
)

// unsupportedSignatures mark a variant as unsupported by the installed tool
// version, as opposed to a real business failure.
var unsupportedSignatures = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
}

// TryVariants executes command variants in order and returns the first
// zero-exit result together with the argv that produced it.
//
// A variant failing with an "unknown command/flag" signature is assumed to be
// a version-skew problem and the next variant is tried. Any other failure is
// returned immediately: falling through on a business error would mask the
// true cause. If every variant is unsupported, the last such result is
// returned.
func TryVariants(ctx context.Context, r Runner, variants [][]string, spec Spec) (Result, []string) {
	var last Result
	var lastArgv []string
	for _, argv := range variants {
		s := spec
		s.Argv = argv
		res := r.Run(ctx, s)
		if res.ExitCode == 0 {
			return res, argv
		}
		if isUnsupportedForm(res.Stderr) || isUnsupportedForm(res.Stdout) {
			last = res
			lastArgv = argv
			continue
		}
		return res, argv
	}
	return last, lastArgv
}

func isUnsupportedForm(out string) bool {
	lower := strings.ToLower(out)
	for _, sig := range unsupportedSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
