package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ortVersion is the ONNX Runtime release the service is built against.
const ortVersion = "1.20.0"

// libraryNames lists the shared library file names for the current OS,
// versioned first.
func libraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libonnxruntime." + ortVersion + ".dylib", "libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so." + ortVersion, "libonnxruntime.so"}
	}
}

func libraryDirs() []string {
	dirs := []string{"lib", filepath.Join("..", "lib")}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "lib"))
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/usr/local/lib", "/usr/lib")
	}
	return dirs
}

// resolveLibraryPath returns configured when it is set and exists, and
// otherwise searches the usual install locations.
func resolveLibraryPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("onnxruntime library not found: %w", err)
		}
		return filepath.Abs(configured)
	}

	return findLibrary(libraryDirs(), libraryNames())
}

func findLibrary(dirs, names []string) (string, error) {
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", fmt.Errorf("onnxruntime library not found; set ONNXRUNTIME_LIB (searched %v for %v)", dirs, names)
}
