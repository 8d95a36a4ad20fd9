package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseEnv(t *testing.T) {
	input := `
# saved by an older version
GEMINI_API_KEY="abc123"
export OPENAI_API_KEY='sk-xyz'
AICHAT_MODEL = gpt-4o-mini
not a pair
=empty
`
	env, err := ParseEnv(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	want := map[string]string{
		"GEMINI_API_KEY": "abc123",
		"OPENAI_API_KEY": "sk-xyz",
		"AICHAT_MODEL":   "gpt-4o-mini",
	}
	if len(env) != len(want) {
		t.Errorf("env = %v, want %v", env, want)
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%q] = %q, want %q", k, env[k], v)
		}
	}
}

func TestLoadEnv_ProcessWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	data := "GEMINI_API_KEY=from-file\nAICHAT_THEME=light\nAICHAT_MODEL=file-model\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GEMINI_API_KEY", "from-process")
	t.Setenv("AICHAT_THEME", "")
	t.Setenv("AICHAT_MODEL", "")

	env, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env["GEMINI_API_KEY"] != "from-process" {
		t.Errorf("GEMINI_API_KEY = %q, want process value", env["GEMINI_API_KEY"])
	}
	// An empty process variable does not hide the file's value.
	if env["AICHAT_THEME"] != "light" {
		t.Errorf("AICHAT_THEME = %q, want light", env["AICHAT_THEME"])
	}
	if env["AICHAT_MODEL"] != "file-model" {
		t.Errorf("AICHAT_MODEL = %q, want file-model", env["AICHAT_MODEL"])
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	t.Setenv("AICHAT_PROVIDER", "openai")
	env, err := LoadEnv(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env["AICHAT_PROVIDER"] != "openai" {
		t.Errorf("AICHAT_PROVIDER = %q", env["AICHAT_PROVIDER"])
	}
}
