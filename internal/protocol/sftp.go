package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var errNotConnected = errors.New("not connected")

// SFTPClient implements the Protocol interface for SFTP connections.
type SFTPClient struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	connected  bool
}

// NewSFTPClient creates a new SFTP client instance.
func NewSFTPClient() *SFTPClient {
	return &SFTPClient{}
}

// newSFTPClientFromSession wraps an already established SFTP session.
func newSFTPClientFromSession(client *sftp.Client) *SFTPClient {
	return &SFTPClient{sftpClient: client, connected: true}
}

// Connect establishes an SFTP connection to the remote server.
func (c *SFTPClient) Connect(ctx context.Context, config *ConnectionConfig) error {
	if c.connected {
		return fmt.Errorf("already connected")
	}

	var authMethods []ssh.AuthMethod

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	if len(config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(authMethods) == 0 {
		return fmt.Errorf("no authentication method provided")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.HostKeyCallback != nil {
		hostKeyCallback = ssh.HostKeyCallback(config.HostKeyCallback)
	}

	timeout := config.timeout()
	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	address := config.Address()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake failed: %w", err)
	}

	c.sshClient = ssh.NewClient(sshConn, chans, reqs)

	c.sftpClient, err = sftp.NewClient(c.sshClient)
	if err != nil {
		c.sshClient.Close()
		c.sshClient = nil
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	c.connected = true
	return nil
}

// Disconnect closes the SFTP and SSH connections.
func (c *SFTPClient) Disconnect() error {
	if !c.connected {
		return nil
	}

	var errs []error

	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("SFTP close: %w", err))
		}
	}

	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("SSH close: %w", err))
		}
	}

	c.connected = false
	c.sftpClient = nil
	c.sshClient = nil

	return errors.Join(errs...)
}

// IsConnected returns true if the client is connected.
func (c *SFTPClient) IsConnected() bool {
	return c.connected
}

// List returns the contents of a directory.
func (c *SFTPClient) List(ctx context.Context, path string) ([]FileInfo, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	entries, err := c.sftpClient.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", path, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		files = append(files, toFileInfo(entry))
	}

	return filterDots(files), nil
}

// Stat returns information about a file or directory, or nil if it is absent.
func (c *SFTPClient) Stat(ctx context.Context, path string) (*FileInfo, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	info, err := c.sftpClient.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	fi := toFileInfo(info)
	return &fi, nil
}

// Get opens a remote file for reading.
func (c *SFTPClient) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	f, err := c.sftpClient.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file: %w", err)
	}
	return f, nil
}

// Put writes r to path, replacing any existing content.
func (c *SFTPClient) Put(ctx context.Context, r io.Reader, path string) (int64, error) {
	if !c.connected {
		return 0, errNotConnected
	}

	remoteFile, err := c.sftpClient.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file: %w", err)
	}

	n, err := CopyWithBuffer(remoteFile, r, 0)
	closeErr := remoteFile.Close()
	if err != nil {
		return n, fmt.Errorf("upload failed: %w", err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close remote file: %w", closeErr)
	}
	return n, nil
}

// Remove removes a file.
func (c *SFTPClient) Remove(ctx context.Context, path string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.sftpClient.Remove(path)
}

// Mkdir creates a directory.
func (c *SFTPClient) Mkdir(ctx context.Context, path string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.sftpClient.Mkdir(path)
}

// RemoveDir removes an empty directory.
func (c *SFTPClient) RemoveDir(ctx context.Context, path string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.sftpClient.RemoveDirectory(path)
}

// GetProtocolName returns "sftp".
func (c *SFTPClient) GetProtocolName() string {
	return "sftp"
}

func toFileInfo(info os.FileInfo) FileInfo {
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
}

func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.FxCode() == sftp.ErrSSHFxNoSuchFile
	}
	return false
}
