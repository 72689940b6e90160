package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"gallery-sync/internal/config"
)

// ErrNoTarget is returned when neither a profile nor a host was given.
var ErrNoTarget = errors.New("no profile configured and no host given")

// ErrMasterPasswordRequired is returned when a stored password is needed but
// no master password was supplied.
var ErrMasterPasswordRequired = errors.New("master password required to read stored credentials")

// Overrides are per-invocation connection settings layered over a profile.
type Overrides struct {
	Protocol       string
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	RemotePath     string
	Timeout        time.Duration
	MasterPassword string
}

// Target is a resolved connection, optionally tied to a saved profile.
type Target struct {
	ProfileID   string
	ProfileName string
	Config      config.SyncConfig
}

// ResolveTarget builds the connection for profileKey (id or name, empty for
// the default profile) with ov applied on top.
func (a *App) ResolveTarget(profileKey string, ov Overrides) (Target, error) {
	var target Target

	profile, err := a.configMgr.FindProfile(profileKey)
	switch {
	case err == nil:
		target.ProfileID = profile.ID
		target.ProfileName = profile.Name
	case errors.Is(err, config.ErrProfileNotFound) && profileKey == "" && ov.Host != "":
		profile = &config.ConnectionProfile{}
	case errors.Is(err, config.ErrProfileNotFound) && profileKey == "":
		return target, ErrNoTarget
	default:
		return target, err
	}

	if ov.Protocol != "" {
		profile.Protocol = ov.Protocol
	}
	if ov.Host != "" {
		profile.Host = ov.Host
	}
	if ov.Port != 0 {
		profile.Port = ov.Port
	}
	if ov.Username != "" {
		profile.Username = ov.Username
	}
	if ov.PrivateKeyPath != "" {
		profile.PrivateKeyPath = ov.PrivateKeyPath
	}
	if ov.RemotePath != "" {
		profile.RemotePath = ov.RemotePath
	}

	password := ov.Password
	if password == "" && target.ProfileID != "" && ov.MasterPassword != "" {
		creds, err := a.Credentials(ov.MasterPassword)
		if err != nil {
			return target, err
		}
		if password, err = creds.GetPassword(target.ProfileID); err != nil {
			return target, fmt.Errorf("read stored password: %w", err)
		}
	}

	var key []byte
	if profile.PrivateKeyPath != "" {
		if key, err = afero.ReadFile(a.fs, profile.PrivateKeyPath); err != nil {
			return target, fmt.Errorf("read private key: %w", err)
		}
	}

	target.Config = profile.SyncConfig(password, key)
	if ov.Timeout > 0 {
		target.Config.Timeout = ov.Timeout
	}
	if password == "" && len(key) == 0 && target.ProfileID != "" {
		if ov.MasterPassword == "" {
			return target, ErrMasterPasswordRequired
		}
		return target, fmt.Errorf("no password stored for profile %q", target.ProfileName)
	}
	return target, nil
}

// Credentials opens the encrypted password store next to the config file.
func (a *App) Credentials(masterPassword string) (*config.CredentialsManager, error) {
	if masterPassword == "" {
		return nil, ErrMasterPasswordRequired
	}
	return config.NewCredentialsManager(filepath.Dir(a.configMgr.Path()), masterPassword)
}
