package engine

import (
	"strings"

	"tenantplane/internal/runner"
)

// outcome is the classification of a single step execution.
type outcome int

const (
	outcomeSuccess outcome = iota
	// outcomeIdempotent means the command failed because the desired end
	// state already holds; the step is reported as a success.
	outcomeIdempotent
	// outcomeTransient means another operation holds a resource lock and the
	// step is worth retrying after a short fixed delay.
	outcomeTransient
	// outcomeTimeout is kept distinct from ordinary failures so retry and
	// idempotency matching never fire on a killed process's partial output.
	outcomeTimeout
	outcomeHard
)

// alreadyExistsPatterns reclassify create-style failures.
var alreadyExistsPatterns = []string{
	"already exists",
	"alreadyexists",
}

// notFoundPatterns reclassify remove-style failures during teardown.
var notFoundPatterns = []string{
	"not found",
	"does not exist",
	"notfound",
}

// conflictPatterns indicate a concurrent operation holding a lock that is
// expected to clear shortly.
var conflictPatterns = []string{
	"operation cannot be fulfilled",
	"the object has been modified",
	"another operation is in progress",
	"conflict",
}

func classify(res runner.Result, idempotent []string) outcome {
	if res.ExitCode == 0 {
		return outcomeSuccess
	}
	if res.TimedOut() {
		return outcomeTimeout
	}
	if matchesAny(res, idempotent) {
		return outcomeIdempotent
	}
	if matchesAny(res, conflictPatterns) {
		return outcomeTransient
	}
	return outcomeHard
}

func matchesAny(res runner.Result, patterns []string) bool {
	out := strings.ToLower(res.Stdout + "\n" + res.Stderr)
	for _, p := range patterns {
		if strings.Contains(out, p) {
			return true
		}
	}
	return false
}
