package config

import (
	"net"
	"os"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

var detectDocker = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// IsRunningInDocker reports whether the process runs inside a Docker container.
func IsRunningInDocker() bool {
	return detectDocker()
}

// ResolveHostForDocker maps loopback hosts to the Docker host gateway when
// running in a container, so data sources registered as "localhost" by an
// operator on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	return resolveLoopback(host, IsRunningInDocker())
}

func resolveLoopback(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	if host == "localhost" {
		return dockerHostGateway
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return dockerHostGateway
	}
	return host
}
