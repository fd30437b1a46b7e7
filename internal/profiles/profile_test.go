package profiles

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeLayer(t *testing.T, dir, role, name, content string) {
	t.Helper()
	roleDir := filepath.Join(dir, role)
	if err := os.MkdirAll(roleDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(roleDir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestLoader(t *testing.T, templateDir, workspaceDir string) *Loader {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewLoader(templateDir, workspaceDir, logger)
}

func TestDefaultProfile(t *testing.T) {
	p := defaultProfile("coder")
	if p.Role != "coder" || p.Name != "coder" {
		t.Errorf("profile = %+v", p)
	}
	if p.Reasoning.Effort != "high" || p.Reasoning.MaxTokens != 4000 {
		t.Errorf("coder reasoning = %+v", p.Reasoning)
	}
	if len(p.Permissions.Allow) == 0 {
		t.Error("default profile has no allowed tools")
	}

	// Unknown roles get the medium default.
	if got := defaultProfile("mystery").Reasoning; got.Effort != "medium" {
		t.Errorf("unknown role reasoning = %+v", got)
	}
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	l := newTestLoader(t, "", "")
	p := l.Get("social")
	if p.Name != "social" || p.Reasoning.Effort != "low" {
		t.Errorf("profile = %+v", p)
	}
}

func TestReload_TemplateLayerOverlays(t *testing.T) {
	templates := t.TempDir()
	writeLayer(t, templates, "coder", IdentityFile, `# Identity

**Name:** Ada
**Emoji:** 🛠️
**Vibe:** precise and calm
`)
	l := newTestLoader(t, templates, "")

	p := l.Get("coder")
	if p.Name != "Ada" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Emoji != "🛠️" || p.Vibe != "precise and calm" {
		t.Errorf("profile = %+v", p)
	}
	// Fields the layer never mentions keep their defaults.
	if p.Title != "Team Member" {
		t.Errorf("title = %q", p.Title)
	}
}

func TestReload_WorkspaceWinsOverTemplate(t *testing.T) {
	templates := t.TempDir()
	workspace := t.TempDir()
	writeLayer(t, templates, "coder", IdentityFile, "**Name:** Ada\n\n**Voice:** formal\n")
	writeLayer(t, workspace, "coder", IdentityFile, "**Name:** Grace\n")
	l := newTestLoader(t, templates, workspace)

	p := l.Get("coder")
	if p.Name != "Grace" {
		t.Errorf("name = %q, want the workspace override", p.Name)
	}
	if p.Voice != "formal" {
		t.Errorf("voice = %q, want the template value to survive", p.Voice)
	}
}

func TestReload_SoulCaptured(t *testing.T) {
	templates := t.TempDir()
	soul := "# Soul\n\nYou are the team's careful reviewer.\n"
	writeLayer(t, templates, "auditor", SoulFile, soul)
	l := newTestLoader(t, templates, "")

	if got := l.Get("auditor").Soul; got != soul {
		t.Errorf("soul = %q", got)
	}
}

func TestReload_PermissionsMerge(t *testing.T) {
	templates := t.TempDir()
	workspace := t.TempDir()
	writeLayer(t, templates, "coder", AgentsFile, `## Allowed Tools

- create_task
- claim_task
`)
	writeLayer(t, workspace, "coder", AgentsFile, `## Allowed Tools

- claim_task
- complete_task

## Denied Tools

- schedule
`)
	l := newTestLoader(t, templates, workspace)

	p := l.Get("coder")
	// Defaults plus both layers, de-duplicated.
	want := map[string]bool{}
	for _, tool := range p.Permissions.Allow {
		if want[tool] {
			t.Errorf("duplicate allowed tool %q", tool)
		}
		want[tool] = true
	}
	for _, tool := range []string{"send_message", "create_task", "claim_task", "complete_task"} {
		if !want[tool] {
			t.Errorf("allow list missing %q: %v", tool, p.Permissions.Allow)
		}
	}
	if len(p.Permissions.Deny) != 1 || p.Permissions.Deny[0] != "schedule" {
		t.Errorf("deny = %v", p.Permissions.Deny)
	}
}

func TestGet_CachesUntilReload(t *testing.T) {
	templates := t.TempDir()
	writeLayer(t, templates, "coder", IdentityFile, "**Name:** Ada\n")
	l := newTestLoader(t, templates, "")

	if got := l.Get("coder").Name; got != "Ada" {
		t.Fatalf("name = %q", got)
	}

	writeLayer(t, templates, "coder", IdentityFile, "**Name:** Grace\n")
	if got := l.Get("coder").Name; got != "Ada" {
		t.Errorf("cached name = %q, want stale Ada before reload", got)
	}

	l.ReloadAll()
	if got := l.Get("coder").Name; got != "Grace" {
		t.Errorf("name after reload = %q", got)
	}
}
