package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystemAllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "journal.db")
	err := checkLocalFilesystemWith(dbPath, func(string) (string, error) { return "apfs", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystemRejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "journal.db")
	err := checkLocalFilesystemWith(dbPath, func(string) (string, error) { return "smbfs", nil })
	if err == nil {
		t.Fatal("expected network filesystem error")
	}
	for _, want := range []string{"smbfs", "SQLite requires a local filesystem", "journal.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err)
		}
	}
}

func TestCheckLocalFilesystemInspectsNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "journal.db")

	var inspected string
	err := checkLocalFilesystemWith(dbPath, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("inspected %q, want %q", inspected, root)
	}
}

func TestCheckLocalFilesystemToleratesUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "journal.db")
	err := checkLocalFilesystemWith(dbPath, func(string) (string, error) { return "", errUnsupported })
	if err != nil {
		t.Fatalf("unsupported detection should pass, got %v", err)
	}

	err = checkLocalFilesystemWith(dbPath, func(string) (string, error) { return "", errors.New("statfs failed") })
	if err == nil {
		t.Fatal("real detection failures should surface")
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fs   string
		want bool
	}{
		{"nfs", true},
		{"SMBFS", true},
		{" cifs ", true},
		{"apfs", false},
		{"0x6969", false},
	}
	for _, tc := range cases {
		if got := isNetworkFilesystem(tc.fs); got != tc.want {
			t.Errorf("isNetworkFilesystem(%q) = %v, want %v", tc.fs, got, tc.want)
		}
	}
}
