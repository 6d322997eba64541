package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"600112233":         "600112233",
		"+34 600 11 22 33":  "600112233",
		"0034600112233":     "600112233",
		"34600112233":       "600112233",
		"600-112-233":       "600112233",
		" 912 345 678 ":     "912345678",
		"+34 (91) 234-5678": "912345678",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizePhone_Rejects(t *testing.T) {
	for _, in := range []string{"", "12345", "abc", "100112233"} {
		_, err := NormalizePhone(in)
		assert.ErrorIs(t, err, ErrInvalidPhone, in)
	}
}

func TestE164(t *testing.T) {
	got, err := E164("600 11 22 33")
	require.NoError(t, err)
	assert.Equal(t, "+34600112233", got)

	_, err = E164("12")
	assert.Error(t, err)
}
