package segment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIDOrdered(t *testing.T) {
	assert.Equal(t, "a-b", ID("a", "b"))
	assert.NotEqual(t, ID("a", "b"), ID("b", "a"))
}

func TestSplitID(t *testing.T) {
	from, to, ok := SplitID("o1-o2")
	assert.True(t, ok)
	assert.Equal(t, "o1", from)
	assert.Equal(t, "o2", to)

	u1, u2 := uuid.NewString(), uuid.NewString()
	from, to, ok = SplitID(ID(u1, u2))
	assert.True(t, ok)
	assert.Equal(t, u1, from)
	assert.Equal(t, u2, to)

	_, _, ok = SplitID("nohyphen")
	assert.False(t, ok)
	_, _, ok = SplitID("-b")
	assert.False(t, ok)
}

func TestValidOrderID(t *testing.T) {
	assert.True(t, ValidOrderID("order42"))
	assert.True(t, ValidOrderID(uuid.NewString()))
	assert.False(t, ValidOrderID("a-b"))
	assert.False(t, ValidOrderID(""))
}
