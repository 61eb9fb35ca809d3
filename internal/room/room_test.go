package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator(t *testing.T) {
	g := RandomGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := g.Generate()
		require.Len(t, code, CodeLength)
		norm, err := Normalize(code)
		require.NoError(t, err)
		assert.Equal(t, code, norm, "generated codes are already normalized")
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ab12cd", "AB12CD"},
		{"  AB12CD  ", "AB12CD"},
		{"abcd", "ABCD"},
		{"Zz9Y", "ZZ9Y"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "   ", "ab-12c", "ab 12c", strings.Repeat("A", MaxCodeLength+1), "ÄB12CD"} {
		t.Run(in, func(t *testing.T) {
			_, err := Normalize(in)
			assert.ErrorIs(t, err, ErrInvalidCode)
		})
	}
}

func TestHostName(t *testing.T) {
	assert.Equal(t, "peersync-host-AB12CD", HostName(DefaultHostPrefix, "AB12CD"))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleHost.Valid())
	assert.True(t, RoleClient.Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, Role("admin").Valid())
}
