package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLoopback(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		expected string
	}{
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"::1", true, "host.docker.internal"},
		{"warehouse.internal", true, "warehouse.internal"},
		{"10.0.0.5", true, "10.0.0.5"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, resolveLoopback(tt.host, tt.inDocker), "host=%s inDocker=%v", tt.host, tt.inDocker)
	}
}

func TestResolveHostForDocker_NonLoopbackUnchanged(t *testing.T) {
	assert.Equal(t, "mydb.example.com", ResolveHostForDocker("mydb.example.com"))
}
