// Package config reads the broker's process configuration from the
// environment. Grounded on the teacher's os.Getenv-with-defaults style
// (same convention as internal/runner/config), applying spec.md §6's
// documented defaults for the broker's variable set.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudide/cloudide/internal/broker/ratelimit"
)

// Config holds every environment variable spec.md §6 recognises for the
// broker process.
type Config struct {
	Port       string
	CORSOrigin string

	JWTSecret    string
	JWTExpiresIn time.Duration

	AppEncryptionKey string
	DBPath           string
	WorkspacesRoot   string

	RunnerURL          string
	RunnerWSURL        string
	RunnerSharedSecret string

	WorkspaceImage     string
	WorkspaceVolume    string
	DefaultCPULimit    string
	DefaultMemLimit    string
	DefaultPIDsLimit   int
	DefaultAllowEgress bool

	LoginRateLimit       ratelimit.Config
	RunnerStartRateLimit ratelimit.Config

	Production bool
}

// FromEnv builds a Config from the process environment, applying
// spec.md §6's documented defaults for anything unset.
func FromEnv() Config {
	return Config{
		Port:       getenv("PORT", "8080"),
		CORSOrigin: getenv("CORS_ORIGIN", "*"),

		JWTSecret:    getenv("JWT_SECRET", "dev-jwt-secret-change-me"),
		JWTExpiresIn: getenvDuration("JWT_EXPIRES_IN", 24*time.Hour),

		AppEncryptionKey: getenv("APP_ENCRYPTION_KEY", "dev-encryption-key-change-me"),
		DBPath:           getenv("DB_PATH", "/var/lib/cloudide/broker.db"),
		WorkspacesRoot:   getenv("WORKSPACES_ROOT", "/var/lib/cloudide/workspaces"),

		RunnerURL:          getenv("RUNNER_URL", "http://localhost:8081"),
		RunnerWSURL:        getenv("RUNNER_WS_URL", "ws://localhost:8081"),
		RunnerSharedSecret: getenv("RUNNER_SHARED_SECRET", "dev-shared-secret-change-me"),

		WorkspaceImage:     getenv("WORKSPACE_IMAGE", "cloudide/workspace:latest"),
		WorkspaceVolume:    getenv("WORKSPACE_VOLUME", "cloudide-workspaces"),
		DefaultCPULimit:    getenv("DEFAULT_CPU_LIMIT", "1"),
		DefaultMemLimit:    getenv("DEFAULT_MEM_LIMIT", "1024m"),
		DefaultPIDsLimit:   getenvInt("DEFAULT_PIDS_LIMIT", 256),
		DefaultAllowEgress: getenvBool("DEFAULT_ALLOW_EGRESS", true),

		LoginRateLimit: ratelimit.Config{
			Max:    getenvInt("LOGIN_RATE_LIMIT_MAX", 5),
			Window: getenvMillis("LOGIN_RATE_LIMIT_WINDOW_MS", time.Minute),
		},
		RunnerStartRateLimit: ratelimit.Config{
			Max:    getenvInt("RUNNER_START_RATE_LIMIT_MAX", 10),
			Window: getenvMillis("RUNNER_START_RATE_LIMIT_WINDOW_MS", time.Minute),
		},

		Production: getenv("ENVIRONMENT", "development") == "production",
	}
}

// OriginAllowed reports whether origin, per spec.md §6's CORS rule, is
// permitted: present in the explicit CORS_ORIGIN list, or that list is
// "*", or (non-production only) origin's host resolves to localhost or
// an RFC1918 private IPv4 address.
func (c Config) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range strings.Split(c.CORSOrigin, ",") {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	if c.Production {
		return false
	}
	return isLocalOrPrivateOrigin(origin)
}

func isLocalOrPrivateOrigin(origin string) bool {
	u, err := netURLHost(origin)
	if err != nil {
		return false
	}
	if u == "localhost" {
		return true
	}
	ip := net.ParseIP(u)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	return isRFC1918(ip)
}

func isRFC1918(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	switch {
	case ip4[0] == 10:
		return true
	case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return true
	case ip4[0] == 192 && ip4[1] == 168:
		return true
	default:
		return false
	}
}

func netURLHost(origin string) (string, error) {
	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h, nil
	}
	host = strings.TrimSuffix(host, "/")
	return host, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
