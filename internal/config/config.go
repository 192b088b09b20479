package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds every runtime knob of the duel server. Values come from the
// environment; unset optional surfaces (WS, status, archive, results DB) stay
// disabled.
type AppConfig struct {
	TCPAddr        string
	UnixSocketPath string
	WSAddr         string
	StatusAddr     string

	ServerPassword string
	MaxNameLen     int
	MaxFrameBytes  int
	ChallengeTTL   time.Duration

	RedisURL    string
	DatabaseURL string
}

const (
	defaultTCPAddr       = "127.0.0.1:3301"
	defaultUnixSocket    = "/tmp/duel-arena.sock"
	defaultMaxNameLen    = 32
	defaultMaxFrameBytes = 256 * 1024
	defaultChallengeTTL  = 30 * time.Second
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		TCPAddr:        defaultTCPAddr,
		UnixSocketPath: defaultUnixSocket,
		MaxNameLen:     defaultMaxNameLen,
		MaxFrameBytes:  defaultMaxFrameBytes,
		ChallengeTTL:   defaultChallengeTTL,
	}

	if v := strings.TrimSpace(os.Getenv("TCP_ADDR")); v != "" {
		cfg.TCPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("UNIX_SOCKET_PATH")); v != "" {
		cfg.UnixSocketPath = v
	}
	cfg.WSAddr = strings.TrimSpace(os.Getenv("WS_ADDR"))
	cfg.StatusAddr = strings.TrimSpace(os.Getenv("STATUS_ADDR"))
	cfg.ServerPassword = strings.TrimSpace(os.Getenv("SERVER_PASSWORD"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("MAX_NAME_LEN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxNameLen = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_FRAME_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxFrameBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			// non-positive disables challenge expiry
			if n <= 0 {
				cfg.ChallengeTTL = 0
			} else {
				cfg.ChallengeTTL = time.Duration(n) * time.Second
			}
		}
	}

	if cfg.TCPAddr == "" && cfg.UnixSocketPath == "" && cfg.WSAddr == "" {
		return nil, errors.New("at least one of TCP_ADDR, UNIX_SOCKET_PATH, WS_ADDR is required")
	}
	return cfg, nil
}
