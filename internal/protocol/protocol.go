// Package protocol defines the remote filesystem interface used by the sync engine.
package protocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Performance constants
const (
	// DefaultBufferSize is the buffer size for file transfers (256KB)
	DefaultBufferSize = 256 * 1024

	// LargeFileThreshold is the size above which we use larger buffers (10MB)
	LargeFileThreshold = 10 * 1024 * 1024

	// LargeBufferSize is used for files larger than LargeFileThreshold (1MB)
	LargeBufferSize = 1024 * 1024

	// DefaultTimeout bounds the connection handshake.
	DefaultTimeout = 30 * time.Second
)

// GetOptimalBufferSize returns the optimal buffer size based on file size.
func GetOptimalBufferSize(fileSize int64) int {
	if fileSize > LargeFileThreshold {
		return LargeBufferSize
	}
	return DefaultBufferSize
}

// CopyWithBuffer copies from src to dst using an optimized buffer size.
func CopyWithBuffer(dst io.Writer, src io.Reader, fileSize int64) (int64, error) {
	buf := make([]byte, GetOptimalBufferSize(fileSize))
	return io.CopyBuffer(dst, src, buf)
}

// FileInfo represents information about a remote file or directory.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// TransferProgress represents the progress of a file transfer.
type TransferProgress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	BytesPerSecond   int64
	StartTime        time.Time
}

// HostKeyCallback is a function called to verify SSH host keys.
type HostKeyCallback func(hostname string, remote net.Addr, key ssh.PublicKey) error

// ConnectionConfig holds the configuration for a connection.
type ConnectionConfig struct {
	Protocol   string // "sftp", "ftps", or "ftp"
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // For SFTP key-based auth
	Timeout    time.Duration

	// TLS settings for FTPS
	TLSImplicit   bool
	TLSSkipVerify bool

	// SSH settings for SFTP. Host keys are not checked when nil.
	HostKeyCallback HostKeyCallback
}

// Address returns host:port.
func (c *ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

func (c *ConnectionConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Protocol is the remote filesystem capability the sync engine consumes.
type Protocol interface {
	// Connect establishes a connection to the remote server.
	Connect(ctx context.Context, config *ConnectionConfig) error

	// Disconnect closes the connection. It is safe to call when not connected.
	Disconnect() error

	// IsConnected returns true if currently connected.
	IsConnected() bool

	// List returns the contents of a directory, without "." and "..".
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Stat returns information about a file or directory.
	// A nil FileInfo with a nil error means the path does not exist.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Get opens a remote file for reading.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Put writes r to a remote file, truncating it, and returns the bytes written.
	Put(ctx context.Context, r io.Reader, path string) (int64, error)

	// Remove removes a file.
	Remove(ctx context.Context, path string) error

	// Mkdir creates a single directory.
	Mkdir(ctx context.Context, path string) error

	// RemoveDir removes an empty directory.
	RemoveDir(ctx context.Context, path string) error

	// GetProtocolName returns the protocol name ("sftp", "ftps" or "ftp").
	GetProtocolName() string
}

// New returns an unconnected client for the named protocol.
func New(name string) (Protocol, error) {
	switch name {
	case "", "sftp":
		return NewSFTPClient(), nil
	case "ftp", "ftps":
		return NewFTPSClient(), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q", name)
	}
}

// Dial creates a client for config.Protocol and connects it.
func Dial(ctx context.Context, config *ConnectionConfig) (Protocol, error) {
	client, err := New(config.Protocol)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx, config); err != nil {
		return nil, err
	}
	return client, nil
}

// ProgressReader wraps an io.Reader to track transfer progress.
type ProgressReader struct {
	Reader     io.Reader
	TotalSize  int64
	BytesRead  int64
	StartTime  time.Time
	FileName   string
	ProgressFn func(TransferProgress)
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.BytesRead += int64(n)

	if pr.ProgressFn != nil && n > 0 {
		elapsed := time.Since(pr.StartTime).Seconds()
		var speed int64
		if elapsed > 0 {
			speed = int64(float64(pr.BytesRead) / elapsed)
		}

		pr.ProgressFn(TransferProgress{
			FileName:         pr.FileName,
			TotalBytes:       pr.TotalSize,
			TransferredBytes: pr.BytesRead,
			BytesPerSecond:   speed,
			StartTime:        pr.StartTime,
		})
	}

	return n, err
}

// countingReader counts bytes for writers that do not report them.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func filterDots(files []FileInfo) []FileInfo {
	out := files[:0]
	for _, f := range files {
		if f.Name == "." || f.Name == ".." {
			continue
		}
		out = append(out, f)
	}
	return out
}
