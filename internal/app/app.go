// Package app wires configuration, logging, storage and the sync engine.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gallery-sync/internal/config"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/store"
	"gallery-sync/internal/sync"
	"gallery-sync/internal/transfer"
	"gallery-sync/pkg/logger"
)

// Options customise how the application is assembled. Zero values fall back
// to the config file.
type Options struct {
	ConfigPath   string
	LogLevel     string
	ConsoleLevel string
	DatabasePath string
	MediaDir     string
	// Bandwidth overrides in bytes per second, 0 keeps the configured value.
	UploadRateLimit   int64
	DownloadRateLimit int64

	Logger   *logger.Logger // nil initializes the process logger
	Stderr   io.Writer
	Fs       afero.Fs
	Dialer   sync.Dialer
	Progress func(protocol.TransferProgress)
}

// App represents the assembled application.
type App struct {
	configMgr  *config.ConfigManager
	cfg        config.AppConfig
	log        *logger.Logger
	ownsLog    bool
	fs         afero.Fs
	store      *store.Store
	knownHosts *config.KnownHosts
	engine     *sync.Engine
}

// New creates a new application instance.
func New(opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultConfigPath()
	}

	configMgr, err := config.NewConfigManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := configMgr.Get()
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.DatabasePath != "" {
		cfg.DatabasePath = opts.DatabasePath
	}
	if opts.MediaDir != "" {
		cfg.MediaDir = opts.MediaDir
	}
	if opts.UploadRateLimit > 0 {
		cfg.UploadRateLimit = opts.UploadRateLimit
	}
	if opts.DownloadRateLimit > 0 {
		cfg.DownloadRateLimit = opts.DownloadRateLimit
	}

	log := opts.Logger
	ownsLog := false
	if log == nil {
		log = logger.GetInstance()
		ownsLog = true
		err = log.Initialize(logger.Config{
			LogPath:      cfg.LogPath,
			Level:        cfg.LogLevel,
			Console:      true,
			ConsoleLevel: opts.ConsoleLevel,
			Writer:       opts.Stderr,
		})
		if err != nil {
			// Log error but continue
			log.Warnf("Failed to initialize file logging: %v", err)
		}
	}

	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	knownHosts, err := config.NewKnownHosts(cfg.KnownHostsPath, cfg.TrustOnFirstUse)
	if err != nil {
		st.Close()
		return nil, err
	}
	knownHosts.OnNewHost(func(host, fingerprint string) {
		log.Warn("trusting new host key", zap.String("host", host), zap.String("fingerprint", fingerprint))
	})

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	engineOpts := []sync.Option{
		sync.WithLogger(log),
		sync.WithFs(fs),
		sync.WithHostKeyCallback(knownHosts.HostKeyCallback()),
		sync.WithBandwidthLimiter(transfer.NewBandwidthLimiter(cfg.UploadRateLimit, cfg.DownloadRateLimit)),
	}
	if opts.Dialer != nil {
		engineOpts = append(engineOpts, sync.WithDialer(opts.Dialer))
	}
	if opts.Progress != nil {
		engineOpts = append(engineOpts, sync.WithProgress(opts.Progress))
	}

	a := &App{
		configMgr:  configMgr,
		cfg:        cfg,
		log:        log,
		ownsLog:    ownsLog,
		fs:         fs,
		store:      st,
		knownHosts: knownHosts,
		engine:     sync.NewEngine(st, st, cfg.MediaDir, engineOpts...),
	}
	log.Debug("application initialized",
		zap.String("config", opts.ConfigPath),
		zap.String("database", cfg.DatabasePath),
		zap.String("media_dir", cfg.MediaDir))
	return a, nil
}

// Close releases the database and flushes the log.
func (a *App) Close() error {
	err := a.store.Close()
	if a.ownsLog {
		a.log.Close()
	}
	return err
}

// Config returns the config manager.
func (a *App) Config() *config.ConfigManager { return a.configMgr }

// Settings returns the effective configuration, overrides applied.
func (a *App) Settings() config.AppConfig { return a.cfg }

// Store returns the collection store.
func (a *App) Store() *store.Store { return a.store }

// Engine returns the sync engine.
func (a *App) Engine() *sync.Engine { return a.engine }

// Logger returns the application logger.
func (a *App) Logger() *logger.Logger { return a.log }

// Upload runs an upload mirror and prunes old change log entries.
func (a *App) Upload(ctx context.Context, target Target) (*sync.Result, error) {
	res, err := a.engine.Upload(ctx, target.Config)
	a.afterSync(ctx, target, err)
	return res, err
}

// Download runs a download mirror and prunes old change log entries.
func (a *App) Download(ctx context.Context, target Target) (*sync.Result, error) {
	res, err := a.engine.Download(ctx, target.Config)
	a.afterSync(ctx, target, err)
	return res, err
}

func (a *App) afterSync(ctx context.Context, target Target, err error) {
	if err != nil {
		return
	}
	if target.ProfileID != "" {
		if uerr := a.configMgr.UpdateLastUsed(target.ProfileID); uerr != nil {
			a.log.Warn("failed to update profile", zap.String("profile", target.ProfileID), zap.Error(uerr))
		}
	}
	if days := a.cfg.ChangeLogRetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if n, perr := a.store.DeleteChangesBefore(ctx, cutoff); perr != nil {
			a.log.Warn("failed to prune change log", zap.Error(perr))
		} else if n > 0 {
			a.log.Debug("pruned change log", zap.Int64("entries", n))
		}
	}
}
