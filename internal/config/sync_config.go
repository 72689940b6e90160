package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gallery-sync/internal/protocol"
)

// ErrInvalidConfig is wrapped by every SyncConfig validation failure.
var ErrInvalidConfig = errors.New("invalid sync config")

const (
	DefaultSSHPort     = 22
	DefaultFTPPort     = 21
	DefaultSyncTimeout = 10 * time.Second
)

// SyncConfig is the connection value handed to each engine operation.
// It is never persisted by the engine.
type SyncConfig struct {
	Protocol      string
	Host          string
	Port          int
	Username      string
	Password      string
	PrivateKey    []byte
	RemotePath    string
	Timeout       time.Duration
	TLSImplicit   bool
	TLSSkipVerify bool
}

// WithDefaults fills the port, timeout and protocol when unset.
func (c SyncConfig) WithDefaults() SyncConfig {
	if c.Protocol == "" {
		c.Protocol = "sftp"
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
		if c.Protocol != "sftp" {
			c.Port = DefaultFTPPort
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultSyncTimeout
	}
	if c.RemotePath != "" {
		c.RemotePath = path.Clean(c.RemotePath)
	}
	return c
}

// Validate reports the first problem found, wrapping ErrInvalidConfig.
func (c SyncConfig) Validate() error {
	switch c.Protocol {
	case "", "sftp", "ftp", "ftps":
	default:
		return fmt.Errorf("%w: unsupported protocol %q", ErrInvalidConfig, c.Protocol)
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidConfig)
	}
	if c.Password == "" && len(c.PrivateKey) == 0 {
		return fmt.Errorf("%w: password or private key is required", ErrInvalidConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if strings.TrimSpace(c.RemotePath) == "" {
		return fmt.Errorf("%w: remote path is required", ErrInvalidConfig)
	}
	for _, part := range strings.Split(c.RemotePath, "/") {
		if part == ".." {
			return fmt.Errorf("%w: remote path %q must not contain ..", ErrInvalidConfig, c.RemotePath)
		}
	}
	return nil
}

// ConnectionConfig converts c for the protocol layer.
func (c SyncConfig) ConnectionConfig(hostKeys protocol.HostKeyCallback) *protocol.ConnectionConfig {
	c = c.WithDefaults()
	return &protocol.ConnectionConfig{
		Protocol:        c.Protocol,
		Host:            c.Host,
		Port:            c.Port,
		Username:        c.Username,
		Password:        c.Password,
		PrivateKey:      c.PrivateKey,
		Timeout:         c.Timeout,
		TLSImplicit:     c.TLSImplicit,
		TLSSkipVerify:   c.TLSSkipVerify,
		HostKeyCallback: hostKeys,
	}
}

// String omits credentials so the value can be logged.
func (c SyncConfig) String() string {
	return fmt.Sprintf("%s://%s@%s:%d%s", c.Protocol, c.Username, c.Host, c.Port, c.RemotePath)
}
