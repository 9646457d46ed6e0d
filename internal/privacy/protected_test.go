package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtectedTerms(t *testing.T) {
	terms := DefaultProtectedTerms()

	assert.True(t, terms.IsProtected("統合失調症"))
	assert.True(t, terms.IsProtected("統合失調症太郎"), "substring match")
	assert.True(t, terms.IsProtected("リスペリドン"))
	assert.False(t, terms.IsProtected("田中太郎"))

	extended := NewProtectedTerms([]string{" 双極症 ", "", "   "})
	assert.Equal(t, terms.Len()+1, extended.Len())
	assert.True(t, extended.IsProtected("双極症"))
	assert.False(t, terms.IsProtected("双極症"))
}

func TestParseCategory(t *testing.T) {
	for _, category := range CanonicalOrder {
		parsed, err := ParseCategory(category.String())
		assert.NoError(t, err)
		assert.Equal(t, category, parsed)
	}

	_, err := ParseCategory("emails")
	assert.Error(t, err)
}
