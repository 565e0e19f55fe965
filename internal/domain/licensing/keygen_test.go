package licensing

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomKeyGenerator_ProductKey(t *testing.T) {
	gen := NewRandomKeyGenerator(32)

	t.Run("prefixes the product tag and has fixed length", func(t *testing.T) {
		for _, p := range Catalogue() {
			key, err := gen.ProductKey(p)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(key, p.Tag()+"_"))
			assert.Len(t, key, len(p.Tag())+1+32)
			assert.Regexp(t, regexp.MustCompile(`^[a-z]{2}_[0-9A-Za-z]{32}$`), key)
		}
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		_, err := gen.ProductKey(Product("crm"))
		assert.Error(t, err)
	})

	t.Run("candidates do not repeat", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 1000; i++ {
			key, err := gen.ProductKey(ProductChatbot)
			require.NoError(t, err)
			_, dup := seen[key]
			require.False(t, dup)
			seen[key] = struct{}{}
		}
	})

	t.Run("non-positive length falls back to default", func(t *testing.T) {
		key, err := NewRandomKeyGenerator(0).ProductKey(ProductSetup)
		require.NoError(t, err)
		assert.Len(t, key, 3+DefaultProductKeyLength)
	})
}

func TestRandomKeyGenerator_LicenseKey(t *testing.T) {
	gen := NewRandomKeyGenerator(DefaultProductKeyLength)
	for i := 0; i < 100; i++ {
		key, err := gen.LicenseKey()
		require.NoError(t, err)
		parsed, err := ParseLicenseKey(string(key))
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}
}
