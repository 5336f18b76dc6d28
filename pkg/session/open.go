package session

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend kinds accepted by OpenBackend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// BackendSettings selects and configures a session backend.
type BackendSettings struct {
	Kind        string
	File        string
	DB          string
	RedisAddr   string
	RedisPrefix string
}

// OpenBackend builds the backend described by s.
func OpenBackend(s BackendSettings) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile:
		return NewFileBackend(s.File)
	case BackendSQLite:
		return NewSQLiteBackendForFile(s.DB)
	case BackendRedis:
		var opts []RedisOption
		if s.RedisPrefix != "" {
			opts = append(opts, WithKeyPrefix(s.RedisPrefix))
		}
		return NewRedisBackend(s.RedisAddr, opts...)
	default:
		return nil, errors.Errorf("unknown session backend %q", s.Kind)
	}
}
