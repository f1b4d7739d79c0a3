package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// cursorHooks mirrors Cursor's hooks.json shape: a map of event name to
// the shell command to invoke, with the hook script's own env vars
// inlined as a single "env K=V ..." prefix.
type cursorHooks struct {
	Hooks map[string]string `json:"hooks"`
}

// claudeSettings mirrors Claude Code's settings.local.json hook shape:
// hooks are nested under event name -> list of {matcher, hooks:[{type,command}]}.
type claudeSettings struct {
	Hooks map[string][]claudeHookGroup `json:"hooks"`
}

type claudeHookGroup struct {
	Matcher string       `json:"matcher,omitempty"`
	Hooks   []claudeHook `json:"hooks"`
}

type claudeHook struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// WriteCursorHooks writes a Cursor hooks.json into worktreePath, wiring
// hookScript to fire for the given event names with the run's env
// exported ahead of the script invocation.
func WriteCursorHooks(worktreePath, hookScript string, events []string, env map[string]string) error {
	dir := filepath.Join(worktreePath, ".cursor")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir cursor hooks dir: %w", err)
	}
	h := cursorHooks{Hooks: make(map[string]string, len(events))}
	prefix := envExportPrefix(env)
	for _, evt := range events {
		h.Hooks[evt] = fmt.Sprintf("%snode %q %s", prefix, hookScript, evt)
	}
	return writeJSON(filepath.Join(dir, "hooks.json"), h)
}

// WriteClaudeHooks writes a Claude Code settings.local.json into
// worktreePath for the given event names.
func WriteClaudeHooks(worktreePath, hookScript string, events []string, env map[string]string) error {
	dir := filepath.Join(worktreePath, ".claude")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir claude hooks dir: %w", err)
	}
	s := claudeSettings{Hooks: make(map[string][]claudeHookGroup, len(events))}
	prefix := envExportPrefix(env)
	for _, evt := range events {
		s.Hooks[evt] = []claudeHookGroup{{
			Hooks: []claudeHook{{
				Type:    "command",
				Command: fmt.Sprintf("%s%s %s", prefix, hookScript, evt),
			}},
		}}
	}
	return writeJSON(filepath.Join(dir, "settings.local.json"), s)
}

func envExportPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	prefix := "env "
	for k, v := range env {
		prefix += fmt.Sprintf("%s=%s ", k, v)
	}
	return prefix
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hooks config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write hooks config %s: %w", path, err)
	}
	return nil
}
