package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	ee := Newf("something went wrong").Build()

	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuilderMetadata(t *testing.T) {
	ee := Newf("fetch failed: %d", 503).
		Category(CategoryNetwork).
		Component("ebird").
		Context("status_code", 503).
		Build()

	assert.Equal(t, "fetch failed: 503", ee.Error())
	assert.Equal(t, "ebird", ee.Component)
	assert.Equal(t, CategoryNetwork, ee.Category)
	assert.Equal(t, 503, ee.Context["status_code"])
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	ee := Newf("request failed: %w", cause).Category(CategoryNetwork).Build()

	assert.True(t, Is(ee, cause))
}

func TestIsMatchesOnCategory(t *testing.T) {
	a := Newf("one").Category(CategoryNotFound).Build()
	b := Newf("two").Category(CategoryNotFound).Build()

	assert.True(t, Is(a, b))
}

func TestAsExtractsEnhancedError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Newf("inner").Category(CategoryCache).Build())

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Equal(t, CategoryCache, ee.Category)
}

func TestGetContextReturnsCopy(t *testing.T) {
	ee := Newf("oops").Context("key", "value").Build()

	ctx := ee.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", ee.Context["key"])
}
