package offerurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare base url", "https://vendor.example.com", "https://vendor.example.com/api/offer"},
		{"base with trailing path", "https://vendor.example.com/webhooks", "https://vendor.example.com/api/offer"},
		{"already the offer path", "https://vendor.example.com/api/offer", "https://vendor.example.com/api/offer"},
		{"prefixed offer path preserved", "https://vendor.example.com/v2/api/offer", "https://vendor.example.com/v2/api/offer"},
		{"query and fragment dropped", "https://vendor.example.com/hook?x=1#frag", "https://vendor.example.com/api/offer"},
		{"port preserved", "http://vendor.example.com:8081", "http://vendor.example.com:8081/api/offer"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts https", func(t *testing.T) {
		assert.NoError(t, Validate("https://vendor.example.com/api/offer", false))
	})

	t.Run("rejects bad scheme", func(t *testing.T) {
		assert.Error(t, Validate("ftp://vendor.example.com", false))
	})

	t.Run("rejects empty host", func(t *testing.T) {
		assert.Error(t, Validate("https://", false))
	})

	t.Run("loopback policy", func(t *testing.T) {
		assert.Error(t, Validate("http://localhost:9000/api/offer", false))
		assert.Error(t, Validate("http://127.0.0.1:9000", false))
		assert.NoError(t, Validate("http://localhost:9000/api/offer", true))
	})
}
