package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Oudwins/verstamp/internals/repo"
	"github.com/Oudwins/verstamp/internals/timeouts"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestConfigDefaults(t *testing.T) {
	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VCS != repo.KindAuto {
		t.Fatalf("expected default vcs auto, got %q", got.VCS)
	}
	if got.Timeout != timeouts.Rewrite {
		t.Fatalf("expected default timeout %s, got %s", timeouts.Rewrite, got.Timeout)
	}
}

func TestConfigBlankFile(t *testing.T) {
	got, err := Load(writeConfig(t, "  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VCS != repo.KindAuto {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestConfigJSONC(t *testing.T) {
	dir := writeConfig(t, `{
	// read tags with the git executable
	"vcs": "git",
	"rewrite_timeout": "30s",
}`)
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VCS != repo.KindGit {
		t.Fatalf("expected vcs git, got %q", got.VCS)
	}
	if got.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", got.Timeout)
	}
}

func TestConfigRejectsUnknownVCS(t *testing.T) {
	if _, err := Load(writeConfig(t, `{"vcs": "svn"}`)); err == nil {
		t.Fatalf("expected error for unknown vcs")
	}
}

func TestConfigRejectsBadTimeout(t *testing.T) {
	if _, err := Load(writeConfig(t, `{"rewrite_timeout": "soon"}`)); err == nil {
		t.Fatalf("expected error for bad timeout")
	}
}
