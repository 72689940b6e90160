package config

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"gallery-sync/internal/protocol"
)

var (
	// ErrUnknownHost is returned for hosts absent from known_hosts when
	// trust on first use is disabled.
	ErrUnknownHost = errors.New("unknown host")
	// ErrHostKeyChanged is returned when a pinned host presents a different key.
	ErrHostKeyChanged = errors.New("host key has changed, possible man-in-the-middle attack")
)

// KnownHosts pins SSH host keys in an OpenSSH format known_hosts file.
type KnownHosts struct {
	filePath        string
	trustOnFirstUse bool
	onNewHost       func(host, fingerprint string)

	mu       sync.Mutex
	callback ssh.HostKeyCallback
}

// NewKnownHosts loads (creating if needed) the known_hosts file at filePath.
func NewKnownHosts(filePath string, trustOnFirstUse bool) (*KnownHosts, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open known_hosts: %w", err)
	}
	f.Close()

	kh := &KnownHosts{filePath: filePath, trustOnFirstUse: trustOnFirstUse}
	if err := kh.reload(); err != nil {
		return nil, err
	}
	return kh, nil
}

// OnNewHost registers a hook invoked when a host is trusted for the first time.
func (kh *KnownHosts) OnNewHost(fn func(host, fingerprint string)) {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	kh.onNewHost = fn
}

func (kh *KnownHosts) reload() error {
	cb, err := knownhosts.New(kh.filePath)
	if err != nil {
		return fmt.Errorf("failed to load known_hosts: %w", err)
	}
	kh.callback = cb
	return nil
}

// GetFingerprint computes the SHA256 fingerprint of a public key.
func GetFingerprint(key ssh.PublicKey) string {
	hash := sha256.Sum256(key.Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(hash[:])
}

// HostKeyCallback returns the verifier used by the SFTP client.
func (kh *KnownHosts) HostKeyCallback() protocol.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		kh.mu.Lock()
		defer kh.mu.Unlock()

		err := kh.callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w: %s", ErrHostKeyChanged, hostname)
		}

		fingerprint := GetFingerprint(key)
		if !kh.trustOnFirstUse {
			return fmt.Errorf("%w: %s with fingerprint %s", ErrUnknownHost, hostname, fingerprint)
		}
		if err := kh.add(hostname, key); err != nil {
			return err
		}
		if kh.onNewHost != nil {
			kh.onNewHost(hostname, fingerprint)
		}
		return nil
	}
}

// add appends a pinned key. Caller holds mu.
func (kh *KnownHosts) add(hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(kh.filePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("write known_hosts: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return kh.reload()
}
