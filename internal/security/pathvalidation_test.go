package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	outsideDir := filepath.Join(tmpDir, "outside")
	for _, d := range []string{safeDir, outsideDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outsideDir, "secret.csv"), []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	// A symlink inside the safe directory pointing out of it.
	symlinkPath := filepath.Join(safeDir, "escape")
	if err := os.Symlink(outsideDir, symlinkPath); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file directly inside", filepath.Join(tmpDir, "frames.csv"), tmpDir, false},
		{"nested new file", filepath.Join(tmpDir, "exports", "frames.csv"), tmpDir, false},
		{"dotdot traversal", filepath.Join(tmpDir, "..", "frames.csv"), tmpDir, true},
		{"relative traversal", "../../../etc/passwd", tmpDir, true},
		{"absolute path outside", "/etc/passwd", tmpDir, true},
		{"through escaping symlink", filepath.Join(symlinkPath, "secret.csv"), safeDir, true},
		{"the symlink itself", symlinkPath, safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v",
					tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestValidateExportPath(t *testing.T) {
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})

	if err := ValidateExportPath(filepath.Join(os.TempDir(), "frames.csv")); err != nil {
		t.Errorf("temp dir export rejected: %v", err)
	}

	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	if err := ValidateExportPath("frames.csv"); err != nil {
		t.Errorf("working dir export rejected: %v", err)
	}

	if err := ValidateExportPath("/etc/passwd"); err == nil {
		t.Error("accepted an export outside the working and temp directories")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0d4f7b3a-1c2e-4a5b-8f6d-9e0a1b2c3d4e", "0d4f7b3a-1c2e-4a5b-8f6d-9e0a1b2c3d4e"},
		{"trip/1", "trip_1"},
		{"../../etc/passwd", "etc_passwd"},
		{"a   b!!c", "a_b_c"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
