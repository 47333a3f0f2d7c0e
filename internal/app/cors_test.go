package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginHost(t *testing.T) {
	assert.Equal(t, "example.com", originHost("https://example.com"))
	assert.Equal(t, "example.com:8080", originHost("http://example.com:8080"))
	assert.Equal(t, "not a url", originHost("not a url"))
}

func TestMatchOrigin(t *testing.T) {
	assert.True(t, matchOrigin("example.com", "example.com"))
	assert.True(t, matchOrigin("*.example.com", "app.example.com"))
	assert.False(t, matchOrigin("*.example.com", "example.org"))
	assert.True(t, matchOrigin("localhost:*", "localhost:3000"))
	assert.False(t, matchOrigin("localhost:*", "remotehost:3000"))
	assert.False(t, matchOrigin("example.com", "evil-example.com"))
}
