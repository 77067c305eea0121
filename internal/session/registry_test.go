package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-ai/inkwell/internal/cancel"
)

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	tok := cancel.NewToken()

	r.Add("s1", tok)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Cancel("s1"))
	assert.True(t, tok.Cancelled())

	// Repeated cancel while still registered remains true and harmless.
	assert.True(t, r.Cancel("s1"))
}

func TestRegistryCancelUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Cancel("ghost"))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Add("s1", cancel.NewToken())
	r.Remove("s1")
	r.Remove("s1") // safe twice

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Cancel("s1"))
}
