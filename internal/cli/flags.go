package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gallery-sync/internal/app"
	"gallery-sync/internal/transfer"
)

// EnvPrefix prefixes environment variables mirroring the global flags, e.g.
// GALLERYSYNC_HOST or GALLERYSYNC_REMOTE_PATH.
const EnvPrefix = "GALLERYSYNC"

const (
	flagConfig        = "config"
	flagProfile       = "profile"
	flagProtocol      = "protocol"
	flagHost          = "host"
	flagPort          = "port"
	flagUser          = "user"
	flagPassword      = "password"
	flagKey           = "key"
	flagRemotePath    = "remote-path"
	flagTimeout       = "timeout"
	flagDatabase      = "db"
	flagMediaDir      = "media-dir"
	flagUploadLimit   = "upload-limit"
	flagDownloadLimit = "download-limit"
	flagLogLevel      = "log-level"
	flagVerbose       = "verbose"
	flagQuiet         = "quiet"

	// Environment only, never a flag.
	keyMasterPassword = "master-password"
)

// AddGlobalFlags adds global flags to the root command and binds them to v.
func AddGlobalFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	defineGlobalFlags(flags)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(flags)
}

func defineGlobalFlags(flags *pflag.FlagSet) {
	flags.String(flagConfig, "", "config file (default is $XDG_CONFIG_HOME/gallery-sync/config.json)")
	flags.StringP(flagProfile, "p", "", "connection profile name or id (default profile if empty)")

	flags.String(flagProtocol, "", "protocol: sftp, ftp, ftps")
	flags.String(flagHost, "", "remote host")
	flags.Int(flagPort, 0, "remote port (default 22 for sftp, 21 for ftp)")
	flags.StringP(flagUser, "u", "", "remote user name")
	flags.String(flagPassword, "", "remote password (prefer "+EnvPrefix+"_PASSWORD)")
	flags.String(flagKey, "", "SSH private key file")
	flags.String(flagRemotePath, "", "remote gallery root")
	flags.Duration(flagTimeout, 0, "connection timeout (default 10s)")

	flags.String(flagDatabase, "", "collection database path")
	flags.String(flagMediaDir, "", "local media directory for downloads")
	flags.String(flagUploadLimit, "", "upload bandwidth limit, e.g. 512K or 2M/s")
	flags.String(flagDownloadLimit, "", "download bandwidth limit, e.g. 512K or 2M/s")
	flags.String(flagLogLevel, "", "file log level: debug, info, warn, error")
	flags.BoolP(flagVerbose, "v", false, "verbose output")
	flags.BoolP(flagQuiet, "q", false, "suppress non-error output")
}

// appOptions turns global settings into application options.
func appOptions(v *viper.Viper) (app.Options, error) {
	opts := app.Options{
		ConfigPath:   v.GetString(flagConfig),
		LogLevel:     v.GetString(flagLogLevel),
		DatabasePath: v.GetString(flagDatabase),
		MediaDir:     v.GetString(flagMediaDir),
		ConsoleLevel: "warn",
	}
	switch {
	case v.GetBool(flagVerbose):
		opts.ConsoleLevel = "debug"
	case v.GetBool(flagQuiet):
		opts.ConsoleLevel = "error"
	}

	var err error
	if s := v.GetString(flagUploadLimit); s != "" {
		if opts.UploadRateLimit, err = transfer.ParseRate(s); err != nil {
			return opts, fmt.Errorf("--%s: %w", flagUploadLimit, err)
		}
	}
	if s := v.GetString(flagDownloadLimit); s != "" {
		if opts.DownloadRateLimit, err = transfer.ParseRate(s); err != nil {
			return opts, fmt.Errorf("--%s: %w", flagDownloadLimit, err)
		}
	}
	return opts, nil
}

// overrides collects per-invocation connection settings.
func overrides(v *viper.Viper) app.Overrides {
	return app.Overrides{
		Protocol:       v.GetString(flagProtocol),
		Host:           v.GetString(flagHost),
		Port:           v.GetInt(flagPort),
		Username:       v.GetString(flagUser),
		Password:       v.GetString(flagPassword),
		PrivateKeyPath: v.GetString(flagKey),
		RemotePath:     v.GetString(flagRemotePath),
		Timeout:        v.GetDuration(flagTimeout),
		MasterPassword: v.GetString(keyMasterPassword),
	}
}
