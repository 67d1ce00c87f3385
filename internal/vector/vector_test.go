package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitAt(i int) Embedding {
	v := make(Embedding, Len)
	v[i] = 1
	return v
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized(unitAt(0)))
	assert.True(t, IsNormalized(RandomUnit()))

	zero := make(Embedding, Len)
	assert.False(t, IsNormalized(zero))

	tooShort := unitAt(0)
	tooShort[0] = 0.5
	assert.False(t, IsNormalized(tooShort))

	withNaN := unitAt(0)
	withNaN[1] = float32(nan())
	assert.False(t, IsNormalized(withNaN))

	wrongLen := make(Embedding, Len-1)
	assert.False(t, IsNormalized(wrongLen))
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestDistanceIP(t *testing.T) {
	a := unitAt(0)
	b := unitAt(0)
	d, err := DistanceIP(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)

	c := unitAt(1)
	d2, err := DistanceIP(a, c)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d2, 1e-6)

	_, err = DistanceIP(a, make(Embedding, 3))
	assert.Error(t, err)
}

func TestDistanceL2Sq(t *testing.T) {
	a := unitAt(0)
	b := unitAt(1)
	d, err := DistanceL2Sq(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-6)
}

func TestI24RoundTrip(t *testing.T) {
	v := RandomUnit()
	encoded, err := ToI24(v)
	require.NoError(t, err)
	require.Len(t, encoded, Len*3)

	decoded, err := FromI24(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, Len)

	for i := range v {
		assert.InDelta(t, v[i], decoded[i], 2.0/(1<<23-1)+1e-4)
	}
}

func TestFromI24RejectsWrongLength(t *testing.T) {
	_, err := FromI24(make([]byte, 10))
	assert.Error(t, err)
}

func TestRawBytesRoundTrip(t *testing.T) {
	v := RandomUnit()
	encoded, err := RawBytes(v)
	require.NoError(t, err)
	require.Len(t, encoded, Len*4)

	decoded, err := FromRawBytes(encoded)
	require.NoError(t, err)
	for i := range v {
		assert.Equal(t, v[i], decoded[i])
	}
}

func TestToI24RejectsWrongLength(t *testing.T) {
	_, err := ToI24(make(Embedding, 10))
	assert.Error(t, err)
}
