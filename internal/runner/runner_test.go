package runner

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesExitAndOutput(t *testing.T) {
	r := New(2)
	res := r.Run(context.Background(), Spec{
		Argv:    []string{"/bin/sh", "-c", "echo out; echo err >&2; exit 3"},
		Timeout: 5 * time.Second,
	})

	if res.ExitCode != 3 {
		t.Errorf("exit code: got %d want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "out") {
		t.Errorf("stdout missing: %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Errorf("stderr missing: %q", res.Stderr)
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Error("finished before started")
	}
}

func TestRunStdin(t *testing.T) {
	r := New(1)
	res := r.Run(context.Background(), Spec{
		Argv:    []string{"cat"},
		Stdin:   "hello stdin",
		Timeout: 5 * time.Second,
	})
	if res.ExitCode != 0 {
		t.Fatalf("exit code: got %d want 0 (stderr %q)", res.ExitCode, res.Stderr)
	}
	if res.Stdout != "hello stdin" {
		t.Errorf("stdout: got %q", res.Stdout)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	r := New(1)
	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Argv:    []string{"/bin/sh", "-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if !res.TimedOut() {
		t.Fatalf("expected timeout classification, got exit %d", res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not kill promptly: %v", elapsed)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("stderr: got %q", res.Stderr)
	}
}

func TestRunBinaryNotFound(t *testing.T) {
	r := New(1)
	res := r.Run(context.Background(), Spec{
		Argv:    []string{"/no/such/binary-xyz"},
		Timeout: time.Second,
	})
	if res.ExitCode != ExitNotFound {
		t.Errorf("exit code: got %d want %d", res.ExitCode, ExitNotFound)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mred\x1b[0m plain"
	if got := StripANSI(in); got != "red plain" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateKeepsHeadAndTail(t *testing.T) {
	s := strings.Repeat("a", 50) + strings.Repeat("z", 50)
	got := Truncate(s, 20)
	if !strings.HasPrefix(got, "aaaaaaaaaa") {
		t.Errorf("head lost: %q", got)
	}
	if !strings.HasSuffix(got, "zzzzzzzzzz") {
		t.Errorf("tail lost: %q", got)
	}
	if !strings.Contains(got, "truncated 80 bytes") {
		t.Errorf("marker missing: %q", got)
	}
	if short := Truncate("short", 20); short != "short" {
		t.Errorf("short string mangled: %q", short)
	}
}

func TestMaskArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "separate flag",
			in:   []string{"accounts", "create", "--password", "s3cret"},
			want: []string{"accounts", "create", "--password", "***"},
		},
		{
			name: "short flag",
			in:   []string{"accounts", "create", "-p", "s3cret"},
			want: []string{"accounts", "create", "-p", "***"},
		},
		{
			name: "joined flag",
			in:   []string{"accounts", "create", "--password=s3cret"},
			want: []string{"accounts", "create", "--password=***"},
		},
		{
			name: "nothing secret",
			in:   []string{"namespaces", "add", "ns-alice"},
			want: []string{"namespaces", "add", "ns-alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskArgs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("length: got %v want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d: got %q want %q", i, got[i], tt.want[i])
				}
			}
			for _, tok := range got {
				if strings.Contains(tok, "s3cret") {
					t.Errorf("secret leaked: %v", got)
				}
			}
		})
	}
}
