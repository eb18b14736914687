package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "stackedcsv/internal/errors"
)

// InputExtensions are the file extensions the loader accepts.
var InputExtensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// FileValidator checks input files and output locations before a run.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateInputFile checks that path is a readable, non-empty file with a
// supported extension that is not an Excel lock file.
func (v *FileValidator) ValidateInputFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return apperrors.NewNotFoundError(fmt.Sprintf("input file %s", path))
	}
	if err != nil {
		return apperrors.NewStorageError("failed to stat input file", err).WithContext("path", path)
	}
	if info.IsDir() {
		return apperrors.NewValidationError(fmt.Sprintf("%s is a directory, not a file", path))
	}
	if info.Size() == 0 {
		return apperrors.NewValidationError(fmt.Sprintf("input file %s is empty", path))
	}

	if !IsSupportedInput(path) {
		return apperrors.NewValidationError(
			fmt.Sprintf("input file %s has unsupported extension %q", path, filepath.Ext(path)))
	}
	if isLockFile(path) {
		return apperrors.NewValidationError(fmt.Sprintf("%s is a temporary Excel file", path))
	}

	file, err := os.Open(path)
	if err != nil {
		return apperrors.NewStorageError("input file is not readable", err).WithContext("path", path)
	}
	file.Close()

	v.logger.Debug("input_validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures output directory exists or can be created
// and is writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewStorageError("failed to create output directory", err).WithContext("directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return apperrors.NewStorageError("output directory is not writable", err).WithContext("directory", dir)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("output_directory_validated", slog.String("directory", dir))
	return nil
}

// ValidateOutputFile checks that output can be written and does not point at
// the input.
func (v *FileValidator) ValidateOutputFile(input, output string) error {
	in, errIn := filepath.Abs(input)
	out, errOut := filepath.Abs(output)
	if errIn == nil && errOut == nil && in == out {
		return apperrors.NewValidationError(fmt.Sprintf("output %s would overwrite the input", output))
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return apperrors.NewValidationError(fmt.Sprintf("output %s is a directory", output))
	}
	return v.ValidateOutputDirectory(filepath.Dir(output))
}

// ListInputs returns the supported files in dir matching pattern, sorted by
// name. Directories, Excel lock files and earlier outputs (*_unified.*) are
// skipped.
func (v *FileValidator) ListInputs(dir, pattern string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("input directory %s", dir))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to stat input directory", err).WithContext("directory", dir)
	}
	if !info.IsDir() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s is not a directory", dir))
	}

	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid pattern %q: %v", pattern, err))
	}

	var files []string
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if !IsSupportedInput(m) || isLockFile(m) || isUnifiedOutput(m) {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)

	if len(files) == 0 {
		v.logger.Warn("no_input_files",
			slog.String("directory", dir),
			slog.String("pattern", pattern))
	}
	return files, nil
}

// IsSupportedInput reports whether the extension of path can be loaded.
func IsSupportedInput(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range InputExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isLockFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "~$")
}

func isUnifiedOutput(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(base, "_unified")
}
