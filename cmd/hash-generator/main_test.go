package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestReadKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{"admin-secret"}, want: "admin-secret"},
		{name: "stdin line", stdin: "from-stdin\n", want: "from-stdin"},
		{name: "stdin without newline", stdin: "no-newline", want: "no-newline"},
		{name: "stdin crlf", stdin: "windows\r\n", want: "windows"},
		{name: "empty", stdin: "", wantErr: true},
		{name: "too long", args: []string{strings.Repeat("k", 73)}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := readKey(tc.args, strings.NewReader(tc.stdin))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	hash, err := hashKey("admin-secret", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("admin-secret")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("other")))
}
