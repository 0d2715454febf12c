package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "frames.json")
	if err := os.WriteFile(file, []byte(`[{"detected":false}]`), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		maxSize int64
		wantErr bool
	}{
		{"readable file", file, 0, false},
		{"within limit", file, 1024, false},
		{"over limit", file, 4, true},
		{"empty name", "", 0, true},
		{"missing", filepath.Join(dir, "missing.json"), 0, true},
		{"directory", dir, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputFile(tt.path, tt.maxSize)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInputFile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputFileCreatesDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := ValidateOutputFile(out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(out)); err != nil || !info.IsDir() {
		t.Errorf("Expected directory to be created, got %v", err)
	}
	if err := ValidateOutputFile(""); err != nil {
		t.Errorf("Expected stdout to be valid, got %v", err)
	}
}

func TestIsFrameFile(t *testing.T) {
	tests := map[string]bool{
		"frames.json":   true,
		"FRAMES.JSON":   true,
		"capture.jsonl": true,
		"a.ndjson":      true,
		"notes.txt":     false,
		"noext":         false,
	}
	for name, want := range tests {
		if got := IsFrameFile(name); got != want {
			t.Errorf("IsFrameFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
