package engine

import (
	"os"
	"path/filepath"
)

// envLibDir overrides the engine library search location when set.
const envLibDir = "RAWBRIDGE_ENGINE_LIB"

// LibraryDir resolves the directory holding the vendor engine's dynamic
// libraries: an environment override first, then a path relative to the
// bridge executable, then the working directory as a last resort. The
// relative layouts match how the vendor redistributable is shipped next to
// the installed binary.
func LibraryDir() string {
	if dir := os.Getenv(envLibDir); dir != "" {
		return dir
	}

	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "..", "engine", "lib")
	}

	return filepath.Join(".", "engine", "lib")
}
