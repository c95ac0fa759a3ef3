package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	assert.Regexp(t, `^\d+\.\d+\.\d+`, Get())
}

func TestString(t *testing.T) {
	assert.Contains(t, String(), "fractal "+Get())
	assert.NotEmpty(t, Commit())
}
