package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	var testCases = []struct {
		description string
		level       Level
		expect      []string
		absent      []string
	}{
		{description: "info hides debug", level: InfoLevel, expect: []string{"task dispatched", "task failed"}, absent: []string{"task resolved"}},
		{description: "debug shows everything", level: DebugLevel, expect: []string{"task resolved", "task dispatched", "task failed"}},
		{description: "error only", level: ErrorLevel, expect: []string{"task failed"}, absent: []string{"task resolved", "task dispatched"}},
		{description: "case insensitive", level: Level("WARN"), expect: []string{"task failed"}, absent: []string{"task dispatched"}},
	}

	for _, testCase := range testCases {
		buffer := &bytes.Buffer{}
		logger := New(&Config{Level: testCase.level, JSON: true, Output: buffer})
		logger.Debug("task resolved", "task", "compile")
		logger.Info("task dispatched", "task", "compile")
		logger.Error("task failed", "task", "compile")
		output := buffer.String()
		for _, fragment := range testCase.expect {
			assert.Contains(t, output, fragment, testCase.description)
		}
		for _, fragment := range testCase.absent {
			assert.NotContains(t, output, fragment, testCase.description)
		}
		assert.Contains(t, output, "compile", testCase.description)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Debug("x")
		logger.Info("x", "k", 1)
		logger.Warn("x")
		logger.Error("x")
	})
	assert.NotNil(t, New(nil))
}
