package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"missing name", func(p *Profile) { p.Name = "" }},
		{"missing system", func(p *Profile) { p.System = "" }},
		{"missing handle", func(p *Profile) { p.Handle = "" }},
		{"missing user id", func(p *Profile) { p.UserID = "" }},
		{"no topics", func(p *Profile) { p.Topics = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")
	content := `{
		"name": "TestBot",
		"system": "A test persona.",
		"handle": "testbot",
		"user_id": "42",
		"topics": ["go", "databases"],
		"post_examples": ["example post"],
		"style": {"post": ["be brief"]}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "TestBot" || p.UserID != "42" {
		t.Errorf("Load() = %+v", p)
	}
	if len(p.Topics) != 2 || len(p.Style.Post) != 1 {
		t.Errorf("Load() topics/style = %v / %v", p.Topics, p.Style)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")
	if err := os.WriteFile(path, []byte(`{"name": "NoHandle"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject a profile missing required fields")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
