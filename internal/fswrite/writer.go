// Package fswrite performs writes to sysfs control files on behalf of
// the frequency controller. Handles are cached between writes; a file
// that rejects a write is made writable and reopened once before the
// failure is surfaced.
package fswrite

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

const controlFileMode = 0o644

// FileHandler is the write executor for control files. It is owned by a
// single control loop and is not safe for concurrent use.
type FileHandler struct {
	files  map[string]*os.File
	logger logr.Logger
}

func NewFileHandler(log logr.Logger) *FileHandler {
	return &FileHandler{
		files:  make(map[string]*os.File),
		logger: log.WithName("fswrite"),
	}
}

// Write puts value into the control file at path. A cached handle is
// tried first; on failure the file mode is forced writable and the file
// reopened. Vendor kernels are known to flip control files read-only or
// invalidate open handles behind our back.
func (h *FileHandler) Write(path string, value string) error {
	if file, found := h.files[path]; found {
		if err := writeAll(file, value); err == nil {
			return nil
		}
		delete(h.files, path)
		file.Close()
	}

	if err := unix.Chmod(path, controlFileMode); err != nil {
		h.logger.V(5).Info("failed to adjust control file mode", "path", path, "error", err.Error())
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open control file %s: %w", path, err)
	}
	if err := writeAll(file, value); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %q to %s: %w", value, path, err)
	}

	h.files[path] = file
	return nil
}

// Close releases all cached handles.
func (h *FileHandler) Close() {
	for path, file := range h.files {
		file.Close()
		delete(h.files, path)
	}
}

func writeAll(file *os.File, value string) error {
	_, err := file.WriteAt([]byte(value), 0)
	return err
}
