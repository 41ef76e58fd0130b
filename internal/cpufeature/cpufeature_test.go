package cpufeature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverrideAndReset(t *testing.T) {
	t.Cleanup(Reset)

	Override(AVX, true)
	assert.True(t, Enabled(AVX))
	Override(AVX, false)
	assert.False(t, Enabled(AVX))

	Reset()
	// After reset the host CPU answers; just check it does not panic and
	// the unknown feature is off.
	_ = Enabled(AVX)
	assert.False(t, Enabled(Feature(99)))
}

func TestScopedDisable(t *testing.T) {
	t.Cleanup(Reset)
	Override(AVX, true)
	Override(AVX2, true)

	ScopedDisable(func() {
		assert.False(t, Enabled(AVX))
		assert.False(t, Enabled(AVX512F), "features without an override are masked too")
		assert.True(t, Enabled(AVX2), "unlisted features keep their state")
	}, AVX, AVX512F)

	assert.True(t, Enabled(AVX), "prior override restored")
	assert.True(t, Enabled(AVX2))
}

func TestFeatureString(t *testing.T) {
	assert.Equal(t, "AVX", AVX.String())
	assert.Equal(t, "NEON", NEON.String())
	assert.Equal(t, "unknown", Feature(99).String())
}
