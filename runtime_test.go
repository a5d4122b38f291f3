package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindLibrary(t *testing.T) {
	empty := t.TempDir()
	dir := t.TempDir()
	names := libraryNames()
	want := filepath.Join(dir, names[len(names)-1])
	if err := os.WriteFile(want, []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	// a directory with a library name must be skipped
	if err := os.Mkdir(filepath.Join(empty, names[0]), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := findLibrary([]string{empty, dir}, names)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("findLibrary = %q, want %q", got, want)
	}

	if _, err := findLibrary([]string{empty}, names); err == nil {
		t.Fatal("expected an error when no library exists")
	}
}

func TestResolveLibraryPathConfigured(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	if _, err := resolveLibraryPath(lib); err == nil {
		t.Fatal("expected an error for a missing configured library")
	}

	if err := os.WriteFile(lib, []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := resolveLibraryPath(lib)
	if err != nil {
		t.Fatal(err)
	}
	if got != lib {
		t.Fatalf("resolveLibraryPath = %q, want %q", got, lib)
	}
}
