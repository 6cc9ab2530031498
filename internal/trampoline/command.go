package trampoline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables set on the child
const (
	EnvWorkingDir       = "UV_WORKING_DIR"
	EnvPythonInstallDir = "UV_PYTHON_INSTALL_DIR"
	EnvSkipLFSSmudge    = "GIT_LFS_SKIP_SMUDGE"
)

// Command is the resolved child invocation
type Command struct {
	Path   string
	Args   []string
	Direct bool // true when an interpreter is exec'd without the package manager
}

// IsInterpreter reports whether arg names a python interpreter
func IsInterpreter(arg string) bool {
	base := strings.TrimSuffix(filepath.Base(arg), ".exe")
	return strings.HasPrefix(base, "python") || base == "mjpython"
}

// ResolveCommand decides what to exec. An interpreter first argument is
// resolved under folder and run directly with the remaining arguments.
// Anything else goes to the package manager unchanged.
func ResolveCommand(folder, payload string, args []string) Command {
	if len(args) > 0 && IsInterpreter(args[0]) {
		path := args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(folder, path)
		}
		return Command{Path: path, Args: append([]string{}, args[1:]...), Direct: true}
	}
	return Command{Path: filepath.Join(folder, payload), Args: append([]string{}, args...)}
}

// String renders the command for diagnostics
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// ChildEnv returns the environment for the child: base plus the working
// directory markers and the LFS smudge skip.
func ChildEnv(base []string, workdir string) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		switch key {
		case EnvWorkingDir, EnvPythonInstallDir, EnvSkipLFSSmudge:
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		EnvWorkingDir+"="+workdir,
		EnvPythonInstallDir+"="+workdir,
		EnvSkipLFSSmudge+"=1",
	)
}

// FixMjpythonShebang repairs the launcher script that MuJoCo ships. Its
// second line hardcodes the interpreter of the build machine's venv; it is
// rewritten to the bundled .venv/bin/python3. A missing script is a no-op.
func FixMjpythonShebang(folder string) (bool, error) {
	path := filepath.Join(folder, ".venv", "bin", "mjpython")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading mjpython: %w", err)
	}

	if !strings.Contains(string(content), "binaries/.venv/bin/python3") {
		return false, nil
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) < 2 {
		return false, nil
	}
	python := filepath.Join(folder, ".venv", "bin", "python3")
	lines[1] = fmt.Sprintf(`'''exec' '%s' "$0" "$@"`, python)

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("checking mjpython: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("writing mjpython: %w", err)
	}
	return true, nil
}
