package trampoline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const homeKey = "home = "

// writeFile is swapped in tests to simulate read-only and permission failures
var writeFile = os.WriteFile

// PyvenvPath returns the virtualenv config path inside folder
func PyvenvPath(folder string) string {
	return filepath.Join(folder, ".venv", "pyvenv.cfg")
}

// PatchHomeLine rewrites every line starting with "home = " to point at
// home. All other bytes, including line endings and a trailing newline, are
// preserved. Reports whether anything changed.
func PatchHomeLine(content []byte, home string) ([]byte, bool) {
	lines := bytes.SplitAfter(content, []byte("\n"))
	var out bytes.Buffer
	out.Grow(len(content) + len(home))

	changed := false
	for _, line := range lines {
		if !bytes.HasPrefix(line, []byte(homeKey)) {
			out.Write(line)
			continue
		}

		body := line
		var ending []byte
		switch {
		case bytes.HasSuffix(body, []byte("\r\n")):
			body, ending = body[:len(body)-2], []byte("\r\n")
		case bytes.HasSuffix(body, []byte("\n")):
			body, ending = body[:len(body)-1], []byte("\n")
		}

		replacement := []byte(homeKey + home)
		if !bytes.Equal(body, replacement) {
			changed = true
		}
		out.Write(replacement)
		out.Write(ending)
	}
	return out.Bytes(), changed
}

// PatchPyvenvCfg points the virtualenv at the bundled interpreter home.
// A read-only failure inside a translocated path returns a
// *TranslocationError; other failures are returned as plain errors.
func PatchPyvenvCfg(folder, home, goos string) error {
	path := PyvenvPath(folder)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	patched, changed := PatchHomeLine(content, home)
	if !changed {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := writeFile(path, patched, info.Mode().Perm()); err != nil {
		if IsTranslocated(goos, folder) && isReadOnly(err) {
			return &TranslocationError{Path: folder, Err: err}
		}
		return fmt.Errorf("writing patched %s: %w", path, err)
	}
	return nil
}

// IsTranslocated reports whether path sits under macOS App Translocation
func IsTranslocated(goos, path string) bool {
	return goos == "darwin" && strings.Contains(path, "AppTranslocation")
}

func isReadOnly(err error) bool {
	return errors.Is(err, syscall.EROFS)
}
