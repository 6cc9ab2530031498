package trampoline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// runtimeHomePrefix names the bundled interpreter directory
const runtimeHomePrefix = "cpython-"

// Candidates returns the folders, relative to the trampoline executable,
// that may hold the runtime payload. Order is priority order.
func Candidates(goos string) []string {
	candidates := []string{".", "bin", "binaries"}
	if goos == "darwin" {
		candidates = append(candidates, filepath.Join("..", "Resources"))
	}
	return candidates
}

// PayloadName returns the runtime executable's file name
func PayloadName(goos string) string {
	if goos == "windows" {
		return "uv.exe"
	}
	return "uv"
}

// ExecutableDir returns the folder of the running executable, falling back
// to the working directory and then ".".
func ExecutableDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// Locate returns the absolute path of the first candidate folder under base
// containing payload. On failure the error lists every searched path.
func Locate(base string, candidates []string, payload string) (string, error) {
	searched := make([]string, 0, len(candidates))
	for _, c := range candidates {
		folder := filepath.Clean(filepath.Join(base, c))
		if abs, err := filepath.Abs(folder); err == nil {
			folder = abs
		}
		candidate := filepath.Join(folder, payload)
		searched = append(searched, candidate)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return folder, nil
		}
	}
	return "", &LocateError{Payload: payload, Searched: searched}
}

// FindRuntimeHome returns the single cpython-* directory name inside folder
func FindRuntimeHome(folder string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrRuntimeHomeNotFound, folder, err)
	}

	var found []string
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), runtimeHomePrefix) {
			continue
		}
		info, err := os.Stat(filepath.Join(folder, entry.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		found = append(found, entry.Name())
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrRuntimeHomeNotFound, folder)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w in %s: %s", ErrAmbiguousRuntimeHome, folder, strings.Join(found, ", "))
	}
}

// HomePath returns the interpreter home written into pyvenv.cfg
func HomePath(folder, runtimeHome, goos string) string {
	if goos == "windows" {
		return filepath.Join(folder, runtimeHome)
	}
	return filepath.Join(folder, runtimeHome, "bin")
}
