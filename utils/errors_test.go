package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestConfigValidationErrors(t *testing.T) {
	err := NewConfigValidationFieldRequiredError(JoinPath("cameras", 2), "id")
	test.That(t, err.Error(), test.ShouldEqual, `error validating "cameras.2": "id" is required`)
	test.That(t, JoinPath("", "decoder", "max_items"), test.ShouldEqual, "decoder.max_items")
}
