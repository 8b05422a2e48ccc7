package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc123").Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("Token = %q, want %q", tok, "abc123")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  tok-456\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tok, err := FileSource{Path: path}.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "tok-456" {
		t.Errorf("Token = %q, want trimmed %q", tok, "tok-456")
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope")}.Token(context.Background())
	if err == nil {
		t.Error("Token from missing file succeeded")
	}
}

func TestFileSource_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := (FileSource{Path: path}).Token(context.Background()); err == nil {
		t.Error("Token from blank file succeeded")
	}
}

func TestEnvSource(t *testing.T) {
	t.Setenv("RT_TEST_TOKEN", " tok-789 ")

	tok, err := EnvSource("RT_TEST_TOKEN").Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "tok-789" {
		t.Errorf("Token = %q, want %q", tok, "tok-789")
	}
}

func TestEnvSource_Unset(t *testing.T) {
	tok, err := EnvSource("RT_TEST_TOKEN_UNSET").Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "" {
		t.Errorf("Token = %q, want empty for unset variable", tok)
	}
}
