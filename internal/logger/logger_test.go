package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	SetLevel("WARN")
	defer SetLevel("INFO")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	SetLevel("DEBUG")
	SetLevel("verbose")
	assert.Equal(t, LevelDebug, GetLevel())
	SetLevel("INFO")
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	err := Configure("INFO", "xml", "stdout")
	assert.Error(t, err)
}
