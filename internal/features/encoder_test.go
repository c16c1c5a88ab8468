package features

import (
	"testing"

	"github.com/gnolang/refine/internal/catalog"
	tt "github.com/gnolang/refine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEncoder(t *testing.T) *Encoder {
	t.Helper()
	cat, err := catalog.New(tt.LanguagePython)
	require.NoError(t, err)
	return New(cat)
}

const nested = "result = []\nfor i in range(10):\n    for j in range(10):\n        result.append(i * j)"

func TestEncodeDeterministic(t *testing.T) {
	t.Parallel()
	enc := newEncoder(t)
	inputs := []string{"", "x = 1", nested, "total = 0\nfor num in numbers:\n    total += num"}
	for _, in := range inputs {
		assert.Equal(t, enc.Encode(in), enc.Encode(in))
	}
}

func TestEncodeFixedDimension(t *testing.T) {
	t.Parallel()
	enc := newEncoder(t)
	require.Equal(t, 7+enc.cat.Len(), enc.Dim())
	assert.Len(t, enc.Names(), enc.Dim())

	for _, in := range []string{"", "a", nested, nested + "\n" + nested} {
		assert.Len(t, enc.Encode(in), enc.Dim())
	}
}

func TestEncodeEmptyIsZero(t *testing.T) {
	t.Parallel()
	enc := newEncoder(t)
	for _, v := range enc.Encode("") {
		assert.Zero(t, v)
	}
}

func TestEncodeNestedLoops(t *testing.T) {
	t.Parallel()
	enc := newEncoder(t)
	vec := enc.Encode(nested)

	assert.InDelta(t, float64(len(nested))/1000, vec[0], 1e-12)
	assert.InDelta(t, 0.04, vec[1], 1e-12)
	assert.Equal(t, 2.0, vec[2], "for loops")
	assert.Equal(t, 2.0, vec[3], "indent depth")
	assert.Equal(t, 1.0, vec[4], "append calls")
	assert.Equal(t, 0.0, vec[5])
	assert.Equal(t, 0.0, vec[6])

	base := len(structural)
	assert.Equal(t, 1.0, vec[base+int(catalog.ReplaceNestedLoops)])
	assert.Equal(t, 0.0, vec[base+int(catalog.ReplaceManualSum)])
}

func TestEncodeMembershipAndAugmented(t *testing.T) {
	t.Parallel()
	enc := newEncoder(t)
	code := "unique_items = []\nfor item in items:\n    if item not in unique_items:\n        unique_items.append(item)\ntotal += 1"
	vec := enc.Encode(code)

	assert.Equal(t, 1.0, vec[5])
	assert.Equal(t, 1.0, vec[6])
	assert.Equal(t, 1.0, vec[len(structural)+int(catalog.UseSetForUniqueness)])
}
