package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"

	"github.com/jlaffaye/ftp"
)

// FTPSClient implements the Protocol interface for FTP and FTPS connections.
type FTPSClient struct {
	conn      *ftp.ServerConn
	connected bool
	name      string
}

// NewFTPSClient creates a new FTPS client instance.
func NewFTPSClient() *FTPSClient {
	return &FTPSClient{name: "ftps"}
}

// Connect establishes an FTP/FTPS connection to the remote server.
func (c *FTPSClient) Connect(ctx context.Context, config *ConnectionConfig) error {
	if c.connected {
		return fmt.Errorf("already connected")
	}

	timeout := config.timeout()
	address := config.Address()
	options := []ftp.DialOption{
		ftp.DialWithTimeout(timeout),
		ftp.DialWithContext(ctx),
	}

	if config.Protocol == "ftp" {
		c.name = "ftp"
	} else {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: config.TLSSkipVerify,
			ServerName:         config.Host,
			MinVersion:         tls.VersionTLS12,
		}
		if config.TLSImplicit {
			options = append(options, ftp.DialWithTLS(tlsConfig))
		} else {
			options = append(options, ftp.DialWithExplicitTLS(tlsConfig))
		}
	}

	conn, err := ftp.Dial(address, options...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if err := conn.Login(config.Username, config.Password); err != nil {
		conn.Quit()
		return fmt.Errorf("login failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	return nil
}

// Disconnect closes the FTPS connection.
func (c *FTPSClient) Disconnect() error {
	if !c.connected {
		return nil
	}

	err := c.conn.Quit()
	c.conn = nil
	c.connected = false

	return err
}

// IsConnected returns true if the client is connected.
func (c *FTPSClient) IsConnected() bool {
	return c.connected
}

// List returns the contents of a directory.
func (c *FTPSClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	entries, err := c.conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entryInfo(entry))
	}

	return filterDots(files), nil
}

// Stat lists the parent directory since FTP has no portable stat command.
func (c *FTPSClient) Stat(ctx context.Context, p string) (*FileInfo, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	return statFromListing(c.conn.List, p)
}

// statFromListing finds p in the listing of its parent. The root and the
// working directory always exist.
func statFromListing(list func(string) ([]*ftp.Entry, error), p string) (*FileInfo, error) {
	clean := path.Clean(p)
	if clean == "/" || clean == "." {
		return &FileInfo{Name: clean, IsDir: true}, nil
	}

	dir, name := path.Split(clean)
	if dir == "" {
		dir = "."
	}

	entries, err := list(dir)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}

	for _, entry := range entries {
		if entry.Name == name {
			fi := entryInfo(entry)
			return &fi, nil
		}
	}

	return nil, nil
}

// isNotFound reports a 550 reply, which servers send for a missing path.
func isNotFound(err error) bool {
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code == ftp.StatusFileUnavailable
}

// Get opens a remote file for reading. The reader must be closed before
// the next command is issued on this connection.
func (c *FTPSClient) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	if !c.connected {
		return nil, errNotConnected
	}

	resp, err := c.conn.Retr(p)
	if err != nil {
		return nil, fmt.Errorf("failed to start download: %w", err)
	}
	return resp, nil
}

// Put uploads r to p.
func (c *FTPSClient) Put(ctx context.Context, r io.Reader, p string) (int64, error) {
	if !c.connected {
		return 0, errNotConnected
	}

	counter := &countingReader{r: r}
	if err := c.conn.Stor(p, counter); err != nil {
		return counter.n, fmt.Errorf("upload failed: %w", err)
	}
	return counter.n, nil
}

// Remove removes a file.
func (c *FTPSClient) Remove(ctx context.Context, p string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.conn.Delete(p)
}

// Mkdir creates a directory.
func (c *FTPSClient) Mkdir(ctx context.Context, p string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.conn.MakeDir(p)
}

// RemoveDir removes an empty directory.
func (c *FTPSClient) RemoveDir(ctx context.Context, p string) error {
	if !c.connected {
		return errNotConnected
	}

	return c.conn.RemoveDir(p)
}

// GetProtocolName returns "ftps", or "ftp" for plain connections.
func (c *FTPSClient) GetProtocolName() string {
	return c.name
}

func entryInfo(entry *ftp.Entry) FileInfo {
	return FileInfo{
		Name:    entry.Name,
		Size:    int64(entry.Size),
		IsDir:   entry.Type == ftp.EntryTypeFolder,
		ModTime: entry.Time,
	}
}
