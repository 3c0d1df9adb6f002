package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointerHelpers(t *testing.T) {
	key := To(int64(42))

	assert.Equal(t, int64(42), Deref(key, 0))
	assert.Equal(t, int64(7), Deref[int64](nil, 7))
	assert.True(t, EqualTo(key, 42))
	assert.False(t, EqualTo(key, 43))
	assert.False(t, EqualTo[int64](nil, 0))
}
