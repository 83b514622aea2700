package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		l, err := New("debug", jsonOutput)
		require.NoError(t, err)
		assert.NotNil(t, l.Named(Scheduler))
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("chatty", false)
	assert.ErrorContains(t, err, "invalid log level")
}
