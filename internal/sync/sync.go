// Package sync mirrors local media collections with a remote directory tree.
//
// Each top-level directory under the remote root is a collection, named by
// media.SanitizeName of the local collection name, and each media file in it
// is an item. Upload treats the local side as authoritative, Download the
// remote side, and Compare only reports. Items are matched by filename and
// a file counts as changed when its size differs.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gallery-sync/internal/config"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/store"
	"gallery-sync/internal/transfer"
	"gallery-sync/pkg/logger"
)

// ErrBusy is returned when an operation is started while another one runs.
var ErrBusy = errors.New("another sync operation is in progress")

// CollectionStore is the local catalogue of collections and items.
type CollectionStore interface {
	ListCollections(ctx context.Context) ([]store.Collection, error)
	ListItems(ctx context.Context, collectionID int64) ([]store.Item, error)
	InsertCollection(ctx context.Context, name string) (int64, error)
	DeleteCollection(ctx context.Context, id int64) error
	InsertItem(ctx context.Context, collectionID int64, path string) error
	RemoveItem(ctx context.Context, collectionID int64, path string) error
	RemoveItemByPath(ctx context.Context, path string) error
	UpdateItemPath(ctx context.Context, oldPath, newPath string) error
}

// ChangeLogSink records one summary entry per mirror sync.
type ChangeLogSink interface {
	AppendChange(ctx context.Context, entry store.ChangeLog) error
}

// Registrar stores a downloaded stream at or near target and returns the
// path it ended up at.
type Registrar interface {
	Register(ctx context.Context, r io.Reader, target string) (string, error)
}

// Dialer opens a connected remote client.
type Dialer func(ctx context.Context, config *protocol.ConnectionConfig) (protocol.Protocol, error)

// Engine runs mirror operations. Operations are serialised: a call made while
// another is running fails with ErrBusy.
type Engine struct {
	store     CollectionStore
	changes   ChangeLogSink
	mediaRoot string

	fs        afero.Fs
	registrar Registrar
	dial      Dialer
	hostKeys  protocol.HostKeyCallback
	bandwidth *transfer.BandwidthLimiter
	progress  func(protocol.TransferProgress)
	log       *logger.Logger
	now       func() time.Time

	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to logger.GetInstance().
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithFs sets the local filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithRegistrar replaces the FileRegistrar used for downloads.
func WithRegistrar(r Registrar) Option {
	return func(e *Engine) { e.registrar = r }
}

// WithDialer replaces protocol.Dial.
func WithDialer(d Dialer) Option {
	return func(e *Engine) { e.dial = d }
}

// WithHostKeyCallback verifies SSH host keys.
func WithHostKeyCallback(cb protocol.HostKeyCallback) Option {
	return func(e *Engine) { e.hostKeys = cb }
}

// WithBandwidthLimiter throttles transfers.
func WithBandwidthLimiter(bl *transfer.BandwidthLimiter) Option {
	return func(e *Engine) { e.bandwidth = bl }
}

// WithProgress receives per-file transfer progress.
func WithProgress(fn func(protocol.TransferProgress)) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over the given store. Downloaded files go
// under mediaRoot, one directory per collection.
func NewEngine(collections CollectionStore, changes ChangeLogSink, mediaRoot string, opts ...Option) *Engine {
	e := &Engine{
		store:     collections,
		changes:   changes,
		mediaRoot: mediaRoot,
		fs:        afero.NewOsFs(),
		dial:      protocol.Dial,
		log:       logger.GetInstance(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registrar == nil {
		e.registrar = NewFileRegistrar(e.fs, e.log)
	}
	return e
}

// session is the state shared by one operation.
type session struct {
	cfg    config.SyncConfig
	client protocol.Protocol
	log    *logger.Logger
	res    *Result
}

// run validates cfg, connects and hands the session to op. The connection is
// released on every exit path and panics surface as errors.
func (e *Engine) run(ctx context.Context, cfg config.SyncConfig, dir Direction, op func(context.Context, *session) error) (res *Result, err error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res = &Result{
		OperationID: uuid.NewString(),
		Direction:   dir,
		StartedAt:   e.now(),
	}
	log := e.log.With(zap.String("operation_id", res.OperationID), zap.String("direction", string(dir)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync operation panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%s failed: %v", dir, r)
		}
		res.Duration = e.now().Sub(res.StartedAt)
		if err != nil {
			log.Error("sync operation failed", zap.Error(err), zap.Duration("duration", res.Duration))
		} else {
			log.Info("sync operation finished",
				zap.Int("collections", res.Collections),
				zap.Int("transferred", res.FilesTransferred),
				zap.Int("skipped", res.FilesSkipped),
				zap.Int("deleted", res.FilesDeleted),
				zap.Int("failed", res.FilesFailed),
				zap.Int64("bytes", res.BytesTransferred),
				zap.Duration("duration", res.Duration))
		}
	}()

	log.Info("sync operation started", zap.Stringer("remote", cfg))

	client, err := e.dial(ctx, cfg.ConnectionConfig(e.hostKeys))
	log.LogConnection(cfg.Protocol, cfg.Host, cfg.Port, err == nil, err)
	if err != nil {
		return res, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	defer func() {
		if derr := client.Disconnect(); derr != nil {
			log.Warn("disconnect failed", zap.Error(derr))
		}
	}()

	s := &session{cfg: cfg, client: client, log: log, res: res}
	return res, op(ctx, s)
}

// TestConnection connects, makes sure the remote root exists and disconnects.
func (e *Engine) TestConnection(ctx context.Context, cfg config.SyncConfig) error {
	_, err := e.run(ctx, cfg, DirectionTest, func(ctx context.Context, s *session) error {
		if _, err := s.client.List(ctx, s.cfg.RemotePath); err == nil {
			return nil
		}
		created, err := ensureRemoteDir(ctx, s.client, s.cfg.RemotePath)
		if err != nil {
			return fmt.Errorf("remote root %s: %w", s.cfg.RemotePath, err)
		}
		if created {
			s.log.Info("created remote root", zap.String("path", s.cfg.RemotePath))
		}
		return nil
	})
	return err
}

func (e *Engine) appendChange(ctx context.Context, s *session, action store.Action, description string) {
	if e.changes == nil {
		return
	}
	entry := store.ChangeLog{Timestamp: e.now(), Action: action, Description: description}
	if err := e.changes.AppendChange(ctx, entry); err != nil {
		s.log.Warn("failed to record change", zap.String("action", string(action)), zap.Error(err))
	}
}

// track wraps r with throttling and progress reporting.
func (e *Engine) track(ctx context.Context, r io.Reader, upload bool, name string, size int64) *protocol.ProgressReader {
	if upload {
		r = e.bandwidth.WrapUpload(ctx, r)
	} else {
		r = e.bandwidth.WrapDownload(ctx, r)
	}
	return &protocol.ProgressReader{
		Reader:     r,
		TotalSize:  size,
		StartTime:  e.now(),
		FileName:   name,
		ProgressFn: e.progress,
	}
}
