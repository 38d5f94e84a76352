package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func setupIntegrityDir(t *testing.T, dir string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dir, "config.yaml"), "include: [auth.yaml, scene.yaml]\nservice:\n  name: test\n")
	writeTestFile(t, filepath.Join(dir, "auth.yaml"), "listener:\n  auth:\n    api_key: secret123\n")
	writeTestFile(t, filepath.Join(dir, "scene.yaml"), "scene:\n  grid_unit: 100\n")
}

func TestVerifyIntegrityAllValid(t *testing.T) {
	dir := t.TempDir()
	setupIntegrityDir(t, dir)
	if _, err := LockConfig(dir, false); err != nil {
		t.Fatal(err)
	}

	result, err := VerifyIntegrity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed {
		t.Errorf("expected Passed=true, got errors: %v", result.Errors)
	}
	if len(result.Warnings) > 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestVerifyIntegrityCredentialMismatchFails(t *testing.T) {
	dir := t.TempDir()
	setupIntegrityDir(t, dir)
	if _, err := LockConfig(dir, false); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(dir, "auth.yaml"), "listener:\n  auth:\n    api_key: hacked\n")

	result, err := VerifyIntegrity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("expected Passed=false for credential file mismatch")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "hash mismatch") {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestVerifyIntegrityOperationalMismatchWarns(t *testing.T) {
	dir := t.TempDir()
	setupIntegrityDir(t, dir)
	if _, err := LockConfig(dir, false); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(dir, "scene.yaml"), "scene:\n  grid_unit: 5\n")

	result, err := VerifyIntegrity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed {
		t.Fatal("operational mismatch should not cause hard fail")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warnings for operational file mismatch")
	}
}

func TestVerifyIntegrityNoManifest(t *testing.T) {
	dir := t.TempDir()
	setupIntegrityDir(t, dir)

	result, err := VerifyIntegrity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("expected Passed=false when credentials are unlocked")
	}
	if len(result.Errors) != 1 || len(result.Warnings) != 2 {
		t.Errorf("errors=%v warnings=%v", result.Errors, result.Warnings)
	}
}
