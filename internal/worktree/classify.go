// Package worktree manages per-ticket git worktrees: creation, removal,
// branch-name conflict resolution, and classification of git/network
// failures so callers can decide whether to retry, surface a diagnostic
// comment, or fail the run outright.
package worktree

import (
	"regexp"
	"strings"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

var sshAuthPatterns = []string{
	"permission denied (publickey",
	"permission denied, please try again",
	"authentication failed",
	"ssh_askpass:",
	"host key verification failed",
	"passphrase for key",
}

var networkPatterns = []string{
	"connection refused",
	"could not resolve host",
	"network is unreachable",
}

var permissionPatterns = []string{
	"permission denied",
}

// Classify inspects a git command's combined message+stderr and returns
// the diagnostic kind callers should react to. Order matters: network
// errors are checked first, then SSH auth, then permission errors that
// aren't SSH-publickey-specific, since "Connection refused" can surface
// over an SSH transport and must never be misclassified as an SSH auth
// failure.
func Classify(operation, message, stderr string) *kanban.DiagnosticError {
	combined := strings.ToLower(message + "\n" + stderr)

	kind := kanban.DiagnosticGitError
	switch {
	case containsAny(combined, networkPatterns):
		kind = kanban.DiagnosticNetworkError
	case containsAny(combined, sshAuthPatterns):
		kind = kanban.DiagnosticSshAuth
	case containsAny(combined, permissionPatterns):
		kind = kanban.DiagnosticPermission
	case strings.Contains(combined, "timed out") || strings.Contains(combined, "timeout"):
		kind = kanban.DiagnosticTimeout
	case combined == "":
		kind = kanban.DiagnosticUnknown
	}

	return &kanban.DiagnosticError{
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Stderr:    stderr,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// conflictCheckedOut matches git's older "is already checked out at '<path>'"
// wording; conflictUsedBy matches the newer "is already used by worktree at
// '<path>'" wording. Both appear with and without surrounding quotes across
// git versions.
var (
	conflictCheckedOut = regexp.MustCompile(`already checked out at '?([^'\n]+)'?`)
	conflictUsedBy     = regexp.MustCompile(`already used by worktree at '?([^'\n]+)'?`)
)

// ExtractConflictingWorktreePath pulls the foreign worktree path out of a
// "branch already checked out / used by worktree" git stderr message, for
// the auto-resolution path in Manager.CreateWorktree.
func ExtractConflictingWorktreePath(stderr string) (string, bool) {
	if m := conflictUsedBy.FindStringSubmatch(stderr); m != nil {
		return strings.TrimSuffix(strings.TrimSpace(m[1]), "'"), true
	}
	if m := conflictCheckedOut.FindStringSubmatch(stderr); m != nil {
		return strings.TrimSuffix(strings.TrimSpace(m[1]), "'"), true
	}
	return "", false
}

// IsBranchConflict reports whether stderr indicates the branch is already
// checked out elsewhere (as opposed to some other git failure).
func IsBranchConflict(stderr string) bool {
	_, ok := ExtractConflictingWorktreePath(stderr)
	return ok
}
