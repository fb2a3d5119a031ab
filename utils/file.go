package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// RemoveFileNoError removes a partially written file if it exists. Errors are logged
// by the unchecked error handler and otherwise dropped.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// SafeJoinDir performs a filepath.Join of 'parent' and 'subdir' but returns an error
// if the resulting path points outside of 'parent'.
// See also https://github.com/cyphar/filepath-securejoin.
func SafeJoinDir(parent, subdir string) (string, error) {
	res := filepath.Join(parent, subdir)
	if !strings.HasPrefix(filepath.Clean(res), filepath.Clean(parent)+string(os.PathSeparator)) {
		return res, errors.Errorf("unsafe path join: '%s' with '%s'", parent, subdir)
	}
	return res, nil
}

// ReplaceExt swaps the extension of fn for ext (which includes the dot).
func ReplaceExt(fn, ext string) string {
	return strings.TrimSuffix(fn, filepath.Ext(fn)) + ext
}
