package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	out := FormatError("catalog invalid", "service web: bad port", "ports are 1-65535")
	assert.Contains(t, out, "Error: catalog invalid")
	assert.Contains(t, out, "service web: bad port")
	assert.Contains(t, out, "Hint: ports are 1-65535")

	assert.NotContains(t, FormatError("x", "", ""), "Hint")
}

func TestWriters(t *testing.T) {
	var buf bytes.Buffer
	Warn(&buf, "tag empty")
	Success(&buf, "done")
	assert.Contains(t, buf.String(), "Warning: tag empty")
	assert.Contains(t, buf.String(), "done")
}

func TestDiffLineKeepsText(t *testing.T) {
	for _, line := range []string{"+any,10.0.0.1,tcp,22", "-any,10.0.0.1,tcp,22", "@@ -1 +1 @@", " context", "--- a"} {
		assert.Contains(t, DiffLine(line), line)
	}
	assert.Contains(t, Decision("ALLOW"), "ALLOW")
	assert.Contains(t, Decision("DENY"), "DENY")
}
