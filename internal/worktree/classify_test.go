package worktree

import (
	"strings"
	"testing"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

func TestB3BranchSlugTruncationIsRuneSafe(t *testing.T) {
	title := strings.Repeat("😀", 60)
	branch := GenerateBranchName("ticket", "abc12345", title)
	for _, r := range branch {
		if r == 0xFFFD {
			t.Fatalf("branch name contains a replacement rune, slug split mid-rune: %q", branch)
		}
	}
}

func TestClassifySshAuthNotConfusedWithNetworkError(t *testing.T) {
	diag := Classify("fetch", "exit status 128", "fatal: Connection refused")
	if diag.Kind != kanban.DiagnosticNetworkError {
		t.Fatalf("expected NetworkError, got %s", diag.Kind)
	}

	diag2 := Classify("fetch", "exit status 128", "Permission denied (publickey).")
	if diag2.Kind != kanban.DiagnosticSshAuth {
		t.Fatalf("expected SshAuth, got %s", diag2.Kind)
	}
}

func TestExtractConflictingWorktreePath(t *testing.T) {
	stderr := "fatal: 'fix/cff1ae76/remove-empty-categories-summary' is already used by worktree at '/private/var/folders/89/xmt0wws13ksdtn4_wm0g1_p40000gn/T/agent-kanban/worktrees/ccbc02ff-6c66-45fc-8b83-330bcb4f5f98'"
	path, ok := ExtractConflictingWorktreePath(stderr)
	if !ok {
		t.Fatal("expected conflict to be detected")
	}
	want := "/private/var/folders/89/xmt0wws13ksdtn4_wm0g1_p40000gn/T/agent-kanban/worktrees/ccbc02ff-6c66-45fc-8b83-330bcb4f5f98"
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}

func TestExtractConflictingWorktreePathLegacyWording(t *testing.T) {
	stderr := "fatal: 'feature-x' is already checked out at '/tmp/worktrees/feature-x'"
	path, ok := ExtractConflictingWorktreePath(stderr)
	if !ok {
		t.Fatal("expected conflict to be detected")
	}
	if path != "/tmp/worktrees/feature-x" {
		t.Fatalf("got %q", path)
	}
}
