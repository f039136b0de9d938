package room

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Commutative(t *testing.T) {
	for i := 0; i < 100; i++ {
		a, b, p := uuid.NewString(), uuid.NewString(), uuid.NewString()
		assert.Equal(t, ID(a, b, p), ID(b, a, p))
	}
	assert.Equal(t, "a_b_p", ID("b", "a", "p"))
	assert.Equal(t, "a_a_p", ID("a", "a", "p"))
}

func TestID_ProductScoped(t *testing.T) {
	assert.NotEqual(t, ID("a", "b", "p1"), ID("a", "b", "p2"))
}

func TestParse(t *testing.T) {
	a, b, p := uuid.NewString(), uuid.NewString(), uuid.NewString()
	id := ID(a, b, p)

	gotA, gotB, gotP, ok := Parse(id)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{a, b}, []string{gotA, gotB})
	assert.Equal(t, p, gotP)

	for _, bad := range []string{"", "a_b", "a__p", "b_a_p", "a_b_p_q"} {
		_, _, _, ok := Parse(bad)
		assert.False(t, ok, bad)
	}
}

func TestHasMemberAndCounterparty(t *testing.T) {
	id := ID("buyer", "seller", "prod")
	assert.True(t, HasMember(id, "buyer"))
	assert.True(t, HasMember(id, "seller"))
	assert.False(t, HasMember(id, "stranger"))
	assert.False(t, HasMember("garbage", "buyer"))

	other, ok := Counterparty(id, "buyer")
	require.True(t, ok)
	assert.Equal(t, "seller", other)
	_, ok = Counterparty(id, "stranger")
	assert.False(t, ok)
}
