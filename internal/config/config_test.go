package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stele-slicer/internal/failure"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/refine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slicer.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, `
stele: zhang
output_dir: out
refine:
  margin: 9
pages:
  - image: p1.png
    counts: [10, 10]
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rp := c.RefineParams()
	if rp.Margin != 9 {
		t.Fatalf("margin = %d", rp.Margin)
	}
	if rp.MaxIterations != refine.DefaultParams().MaxIterations {
		t.Fatalf("max iterations lost its default: %d", rp.MaxIterations)
	}
	if c.QAParams().Mode != qa.Strict {
		t.Fatalf("qa mode = %s", c.QAParams().Mode)
	}
	if got := c.Resolve("p1.png"); got != filepath.Join(filepath.Dir(path), "p1.png") {
		t.Fatalf("Resolve = %s", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLICER_WORKERS", "7")
	t.Setenv("SLICER_LABELER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "k")
	path := writeConfig(t, "stele: zhang\n")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Workers != 7 || c.Labeler.Kind != "claude" || c.Labeler.APIKey != "k" {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := writeConfig(t, "stele: zhang\n")
	env := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(env, []byte("SLICER_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SLICER_LOG_LEVEL", "warn")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.LogLevel != "warn" {
		t.Fatalf("log level = %s", c.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"direction", func(c *Config) { c.Direction = "diagonal" }, "direction"},
		{"workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"qa mode", func(c *Config) { c.QA.Mode = "loose" }, "qa mode"},
		{"page grid", func(c *Config) { c.Pages = []Page{{Image: "a.png"}} }, "counts or transcript"},
		{"pad", func(c *Config) { c.Normalize.PadRatio = 0.5 }, "pad_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	path := writeConfig(t, "stele: [unclosed\n")
	_, err := Load(path)
	if !failure.IsCode(err, failure.MalformedInput) {
		t.Fatalf("err = %v", err)
	}
}
