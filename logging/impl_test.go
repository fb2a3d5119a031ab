package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestSubloggerNames(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("encoder").Sublogger("cam0")
	sub.Infow("stored frame", "seq", 3)

	entries := logs.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "encoder.cam0")
	test.That(t, entries[0].ContextMap()["seq"], test.ShouldEqual, int64(3))
}

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"", INFO},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
	logger.Info("dropped")
	logger.Warn("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
}
