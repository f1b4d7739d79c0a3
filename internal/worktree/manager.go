package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

// Manager creates and tears down git worktrees under worktreeDir for a
// single repo, and classifies failures for the Stage Orchestrator.
type Manager struct {
	RepoRoot    string
	WorktreeDir string
	MainBranch  string
}

func New(repoRoot, worktreeDir, mainBranch string) *Manager {
	if mainBranch == "" {
		mainBranch = "main"
	}
	return &Manager{RepoRoot: repoRoot, WorktreeDir: worktreeDir, MainBranch: mainBranch}
}

// Info describes a created worktree.
type Info struct {
	Path   string
	Branch string
}

// CreateWorktree adds a new worktree on a fresh branch rooted at
// MainBranch. If git reports the branch is already checked out in another
// worktree, it passes that worktree's path to resolveForeignWorktree and,
// if the path could be pruned, retries once with the same branch name.
func (m *Manager) CreateWorktree(ctx context.Context, ticketID, branch string) (*Info, error) {
	path := filepath.Join(m.WorktreeDir, ticketID)

	out, err := m.runGit(ctx, "worktree", "add", "-b", branch, path, m.MainBranch)
	if err != nil {
		if confPath, ok := ExtractConflictingWorktreePath(out.stderr); ok {
			if err := m.resolveForeignWorktree(ctx, confPath); err == nil {
				out2, err2 := m.runGit(ctx, "worktree", "add", "-b", branch, path, m.MainBranch)
				if err2 == nil {
					return &Info{Path: path, Branch: branch}, nil
				}
				return nil, Classify("worktree add", err2.Error(), out2.stderr)
			}
		}
		if strings.Contains(out.stderr, "unborn") || strings.Contains(out.stderr, "does not have any commits") {
			return nil, &kanban.UnbornBranchError{RepoPath: m.RepoRoot}
		}
		return nil, Classify("worktree add", err.Error(), out.stderr)
	}
	return &Info{Path: path, Branch: branch}, nil
}

// resolveForeignWorktree handles the case where the conflicting path
// belongs to a worktree this repo no longer tracks (its .git pointer
// file resolves to a repo that's gone, or the directory itself is gone):
// prune it so the retry in CreateWorktree can succeed. If the foreign
// worktree's repo is still present and active, this returns an error and
// the caller does not retry, to avoid stepping on live work.
func (m *Manager) resolveForeignWorktree(ctx context.Context, foreignPath string) error {
	gitFile := filepath.Join(foreignPath, ".git")
	if _, err := os.Stat(foreignPath); os.IsNotExist(err) {
		_, pruneErr := m.runGit(ctx, "worktree", "prune")
		return pruneErr
	}
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return fmt.Errorf("read foreign worktree pointer: %w", err)
	}
	// ".git" pointer files have the form "gitdir: <path>"; if that path no
	// longer exists the worktree is orphaned and safe to prune.
	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, "gitdir: ") {
		gitdir := strings.TrimPrefix(content, "gitdir: ")
		if _, err := os.Stat(gitdir); os.IsNotExist(err) {
			_, pruneErr := m.runGit(ctx, "worktree", "prune")
			return pruneErr
		}
	}
	return fmt.Errorf("foreign worktree at %s is still active, refusing to reclaim", foreignPath)
}

// RemoveWorktree removes a worktree, falling back to a forced filesystem
// removal plus prune if git itself refuses (e.g. dirty working tree).
func (m *Manager) RemoveWorktree(ctx context.Context, path string) error {
	out, err := m.runGit(ctx, "worktree", "remove", "--force", path)
	if err == nil {
		return nil
	}
	if rmErr := os.RemoveAll(path); rmErr != nil {
		return fmt.Errorf("worktree remove fallback failed: %w (git error: %s)", rmErr, out.stderr)
	}
	_, _ = m.runGit(ctx, "worktree", "prune")
	return nil
}

// HasUncommittedChanges reports whether the worktree at path has a dirty
// working tree.
func (m *Manager) HasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	out, err := m.runGitIn(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, Classify("status", err.Error(), out.stderr)
	}
	return strings.TrimSpace(out.stdout) != "", nil
}

// Commit stages everything and commits in the given worktree.
func (m *Manager) Commit(ctx context.Context, path, message string) error {
	if _, err := m.runGitIn(ctx, path, "add", "-A"); err != nil {
		return Classify("add", err.Error(), "")
	}
	out, err := m.runGitIn(ctx, path, "commit", "-m", message)
	if err != nil {
		return Classify("commit", err.Error(), out.stderr)
	}
	return nil
}

// Push pushes the current branch of the worktree at path to origin.
func (m *Manager) Push(ctx context.Context, path, branch string) error {
	out, err := m.runGitIn(ctx, path, "push", "-u", "origin", branch)
	if err != nil {
		return Classify("push", err.Error(), out.stderr)
	}
	return nil
}

// ResolveForeignRepo uses go-git's pure-Go pointer-file resolution to
// find which repo a foreign worktree path actually belongs to, for
// diagnostics when resolveForeignWorktree refuses to reclaim it.
func (m *Manager) ResolveForeignRepo(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("resolve foreign repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("resolve foreign repo worktree: %w", err)
	}
	return wt.Filesystem.Root(), nil
}

type gitOutput struct {
	stdout string
	stderr string
}

func (m *Manager) runGit(ctx context.Context, args ...string) (gitOutput, error) {
	return m.runGitIn(ctx, m.RepoRoot, args...)
}

func (m *Manager) runGitIn(ctx context.Context, dir string, args ...string) (gitOutput, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_SSH_COMMAND=ssh -o BatchMode=yes -o StrictHostKeyChecking=accept-new",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := gitOutput{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		return out, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// staleCutoff is how long a worktree may sit unused before it counts as
// abandoned. No function in this package reads it.
const staleCutoff = 24 * time.Hour
