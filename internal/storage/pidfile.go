package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPIDFile is where sleepd records its process id.
func DefaultPIDFile() string { return filepath.Join(DefaultDir(), "sleepd.pid") }

// WritePID records the current process id at path.
func WritePID(fsys afero.Fs, path string) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return afero.WriteFile(fsys, path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
}

// ReadPID returns the process id stored at path.
func ReadPID(fsys afero.Fs, path string) (int, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: invalid content %q", path, strings.TrimSpace(string(b)))
	}
	return pid, nil
}
