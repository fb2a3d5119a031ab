package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

// NewConfigValidationError returns a config validation error occurring at a given path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewConfigValidationFieldRequiredError returns a config validation error for a field missing at a
// given path.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}

// JoinPath joins a config path and a field name the way validation messages expect.
func JoinPath(path string, parts ...interface{}) string {
	for _, p := range parts {
		if path == "" {
			path = fmt.Sprint(p)
			continue
		}
		path = fmt.Sprintf("%s.%v", path, p)
	}
	return path
}
