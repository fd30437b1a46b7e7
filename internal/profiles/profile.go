// Package profiles composes per-bot identities from layered markdown
// sources: built-in defaults, the packaged team template, and workspace
// overrides. Later layers win field by field.
package profiles

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Template file names expected in each layer directory.
const (
	SoulFile     = "SOUL.md"
	IdentityFile = "IDENTITY.md"
	AgentsFile   = "AGENTS.md"
)

// Profile is a bot's composed identity. Immutable once built; reloads
// swap the whole profile.
type Profile struct {
	Role        string          `json:"role"`
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Emoji       string          `json:"emoji"`
	Vibe        string          `json:"vibe"`
	Greeting    string          `json:"greeting"`
	Voice       string          `json:"voice"`
	Soul        string          `json:"soul"` // full SOUL text for the system prompt
	Permissions ToolPermissions `json:"permissions"`
	Reasoning   ReasoningConfig `json:"reasoning"`
}

// ToolPermissions lists the tools a bot may and may not call.
type ToolPermissions struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// merge folds another layer's permissions in; the new layer's entries win.
func (p ToolPermissions) merge(next ToolPermissions) ToolPermissions {
	out := ToolPermissions{
		Allow: mergeUnique(p.Allow, next.Allow),
		Deny:  mergeUnique(p.Deny, next.Deny),
	}
	return out
}

func mergeUnique(base, extra []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string(nil), base...), extra...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ReasoningConfig is the opaque per-role reasoning setting passed through
// to model callers.
type ReasoningConfig struct {
	Effort    string `json:"effort"` // low | medium | high
	MaxTokens int    `json:"max_tokens"`
}

// reasoningByRole maps bot roles to their reasoning defaults.
var reasoningByRole = map[string]ReasoningConfig{
	"researcher": {Effort: "high", MaxTokens: 4000},
	"coder":      {Effort: "high", MaxTokens: 4000},
	"auditor":    {Effort: "high", MaxTokens: 4000},
	"leader":     {Effort: "medium", MaxTokens: 2000},
	"social":     {Effort: "low", MaxTokens: 1000},
	"creative":   {Effort: "medium", MaxTokens: 2000},
}

// defaultProfile is the bottom layer for every role.
func defaultProfile(role string) Profile {
	reasoning, ok := reasoningByRole[role]
	if !ok {
		reasoning = ReasoningConfig{Effort: "medium", MaxTokens: 2000}
	}
	return Profile{
		Role:     role,
		Name:     role,
		Title:    "Team Member",
		Emoji:    "🤖",
		Vibe:     "helpful and direct",
		Greeting: fmt.Sprintf("Hi, I'm %s.", role),
		Voice:    "clear, concise, no filler",
		Permissions: ToolPermissions{
			Allow: []string{"send_message", "search_messages"},
		},
		Reasoning: reasoning,
	}
}

// Loader builds and caches composed profiles. templateDir holds the
// packaged team templates (one subdirectory per role); workspaceDir holds
// operator overrides in the same shape. Either may be empty.
type Loader struct {
	mu          sync.RWMutex
	profiles    map[string]Profile
	templateDir string
	workspaceDir string
	logger      *slog.Logger
}

// NewLoader builds a loader over the two layer directories.
func NewLoader(templateDir, workspaceDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		profiles:     make(map[string]Profile),
		templateDir:  templateDir,
		workspaceDir: workspaceDir,
		logger:       logger,
	}
}

// Get returns the composed profile for a role, building it on first use.
func (l *Loader) Get(role string) Profile {
	l.mu.RLock()
	p, ok := l.profiles[role]
	l.mu.RUnlock()
	if ok {
		return p
	}
	return l.Reload(role)
}

// Reload rebuilds one role's profile from all layers.
func (l *Loader) Reload(role string) Profile {
	p := defaultProfile(role)
	for _, dir := range []string{l.templateDir, l.workspaceDir} {
		if dir == "" {
			continue
		}
		p = l.applyLayer(p, filepath.Join(dir, role))
	}

	l.mu.Lock()
	l.profiles[role] = p
	l.mu.Unlock()
	return p
}

// ReloadAll rebuilds every cached profile. Used by the file watcher.
func (l *Loader) ReloadAll() {
	l.mu.RLock()
	roles := make([]string, 0, len(l.profiles))
	for role := range l.profiles {
		roles = append(roles, role)
	}
	l.mu.RUnlock()
	for _, role := range roles {
		l.Reload(role)
	}
}

// applyLayer overlays one directory's SOUL/IDENTITY/AGENTS files onto p.
// Missing files leave their fields untouched; parse failures log and skip.
func (l *Loader) applyLayer(p Profile, dir string) Profile {
	for _, name := range []string{SoulFile, IdentityFile, AgentsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Warn("profile layer unreadable", "file", name, "dir", dir, "error", err)
			}
			continue
		}
		fields := parseTemplate(data)
		p = overlay(p, fields)
		if name == SoulFile {
			p.Soul = string(data)
		}
	}
	return p
}

// overlay applies parsed fields onto the profile; empty fields keep the
// previous layer's value.
func overlay(p Profile, f templateFields) Profile {
	if f.Name != "" {
		p.Name = f.Name
	}
	if f.Title != "" {
		p.Title = f.Title
	}
	if f.Emoji != "" {
		p.Emoji = f.Emoji
	}
	if f.Vibe != "" {
		p.Vibe = f.Vibe
	}
	if f.Greeting != "" {
		p.Greeting = f.Greeting
	}
	if f.Voice != "" {
		p.Voice = f.Voice
	}
	if len(f.Permissions.Allow) > 0 || len(f.Permissions.Deny) > 0 {
		p.Permissions = p.Permissions.merge(f.Permissions)
	}
	return p
}
