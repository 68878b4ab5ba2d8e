package engine

import (
	"testing"

	"tenantplane/internal/runner"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		res        runner.Result
		idempotent []string
		want       outcome
	}{
		{
			name: "zero exit is success",
			res:  runner.Result{ExitCode: 0},
			want: outcomeSuccess,
		},
		{
			name:       "already exists rewrites to idempotent",
			res:        runner.Result{ExitCode: 1, Stderr: "Error: user already exists"},
			idempotent: alreadyExistsPatterns,
			want:       outcomeIdempotent,
		},
		{
			name:       "not found during teardown is idempotent",
			res:        runner.Result{ExitCode: 1, Stderr: `namespaces "x" NotFound`},
			idempotent: notFoundPatterns,
			want:       outcomeIdempotent,
		},
		{
			name:       "idempotent pattern matches stdout too",
			res:        runner.Result{ExitCode: 1, Stdout: "namespace already exists"},
			idempotent: alreadyExistsPatterns,
			want:       outcomeIdempotent,
		},
		{
			name: "api server conflict is transient",
			res:  runner.Result{ExitCode: 1, Stderr: "Operation cannot be fulfilled on namespaces"},
			want: outcomeTransient,
		},
		{
			name: "timeout is distinct from business failure",
			res:  runner.Result{ExitCode: runner.ExitTimeout, Stderr: "conflict"},
			want: outcomeTimeout,
		},
		{
			name:       "anything else is a hard failure",
			res:        runner.Result{ExitCode: 1, Stderr: "permission denied"},
			idempotent: alreadyExistsPatterns,
			want:       outcomeHard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.res, tt.idempotent); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
