// Package cmds holds the paguro subcommands.
package cmds

import (
	"github.com/go-go-golems/paguro/pkg/channel"
	"github.com/go-go-golems/paguro/pkg/config"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

func newClient(s *config.Settings) (*channel.Client, error) {
	return channel.New(s.APIBaseURL, channel.WithTimeout(s.RequestTimeout))
}

// openStore opens the configured session backend under the key of profile.
// A backend that cannot be opened degrades to an in-memory session.
func openStore(s *config.Settings, profile widget.Profile) *session.Store {
	store, err := openBackendStore(s, profile)
	if err != nil {
		log.Warn().Err(err).
			Str("component", "session").
			Str("backend", s.SessionBackend).
			Msg("session storage unavailable, keeping the session in memory")
		return session.NewStore(nil, profile.StorageKey)
	}
	return store
}

// openBackendStore is openStore without the fallback, for commands that
// manage the stored session itself.
func openBackendStore(s *config.Settings, profile widget.Profile) (*session.Store, error) {
	backend, err := session.OpenBackend(s.SessionBackendSettings())
	if err != nil {
		return nil, errors.Wrap(err, "could not open session backend")
	}
	return session.NewStore(backend, profile.StorageKey), nil
}
