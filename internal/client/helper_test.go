package client

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHelper(t *testing.T) {
	t.Setenv("GIT_SSH", "/usr/bin/ssh")

	require.NoError(t, RegisterHelper("GIT_SSH"))
	assert.Equal(t, "rbssh", os.Getenv("GIT_SSH"))
}

func TestIsSSHURI(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"ssh://user@example.com/repo", true},
		{"sftp://example.com/path", true},
		{"SSH://example.com/repo", true},
		{"https://example.com/repo", false},
		{"git@example.com:repo.git", false},
		{"/local/path", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSSHURI(tt.url))
		})
	}
}
