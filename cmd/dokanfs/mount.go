package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/config"
	"github.com/godokan/go-dokan/dokanfs"
	"github.com/godokan/go-dokan/log"
	logruslog "github.com/godokan/go-dokan/log/logrus"
	"github.com/godokan/go-dokan/metrics"
	"github.com/godokan/go-dokan/pathkey"
)

// mountFlags override the configuration file.
type mountFlags struct {
	mountPoint  string
	backendType string
	readOnly    bool
	debug       bool
}

var flags mountFlags

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the configured backend",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			if err := cmd.Flags().Set("mount", args[0]); err != nil {
				return err
			}
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}

		logger, closer, err := newLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer closer.Close()
		l := logruslog.New(logger, cfg.Logging.TopicMask())

		host, err := newHost(l)
		if err != nil {
			return err
		}

		// Keep running until the user interrupt.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, host, logger)
	},
}

func init() {
	f := mountCmd.Flags()
	f.StringVarP(&flags.mountPoint, "mount", "m", "", "Where to mount the volume")
	f.StringVarP(&flags.backendType, "backend", "b", "", "Backend type: memory, os, badger or s3")
	f.BoolVar(&flags.readOnly, "read-only", false, "Mount the volume write protected")
	f.BoolVar(&flags.debug, "debug", false, "Log every callback")
}

// applyFlags copies the flags given on the command line
// into cfg and validates the result.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("mount") {
		cfg.Mount.MountPoint = flags.mountPoint
	}
	if f.Changed("backend") {
		cfg.Backend.Type = flags.backendType
	}
	if f.Changed("read-only") {
		cfg.Mount.ReadOnly = flags.readOnly
	}
	if f.Changed("debug") && flags.debug {
		cfg.Logging.Level = "DEBUG"
		cfg.Logging.Topics = []string{"call", "verdict", "trace", "error"}
	}
	config.Normalize(cfg)
	return errors.Wrap(config.Validate(cfg), "invalid flags")
}

// run serves the configured backend with host until ctx is
// done or the volume goes away.
func run(ctx context.Context, cfg *config.Config, host dokan.Host, logger *logrus.Logger) error {
	l := logruslog.New(logger, cfg.Logging.TopicMask())
	store, err := config.OpenBackend(ctx, cfg.Backend, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("Close backend")
		}
	}()

	recorder, server, err := startMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	if server != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Stop metrics server")
			}
		}()
	}

	ops, err := newOperations(cfg, store, host, l, recorder)
	if err != nil {
		return err
	}
	mountOpts, err := cfg.Mount.MountOptions()
	if err != nil {
		return err
	}
	m, err := dokan.MountWith(ctx, host, ops, cfg.Mount.MountPoint, mountOpts...)
	if err != nil {
		return errors.Wrap(err, "mount filesystem")
	}
	logger.WithFields(logrus.Fields{
		"mountpoint": cfg.Mount.MountPoint,
		"backend":    cfg.Backend.Type,
	}).Info("Volume mounted")

	select {
	case <-ctx.Done():
		logger.Info("Unmounting volume")
		if err := m.Unmount(); err != nil {
			return errors.Wrap(err, "unmount filesystem")
		}
	case <-m.Done():
		logger.Info("Volume unmounted externally")
	}
	return nil
}

// newOperations builds the bridge of the configuration.
func newOperations(
	cfg *config.Config, store *config.Backend, host dokan.Host,
	l log.Log, recorder metrics.Metrics,
) (*dokanfs.FileSystem, error) {
	mode, err := cfg.Mount.ReadOnlyMode()
	if err != nil {
		return nil, err
	}
	opts := []dokanfs.NewOption{
		dokanfs.WithLog(l),
		dokanfs.WithMetrics(recorder),
		dokanfs.WithVolume(cfg.Mount.VolumeLabel, cfg.Mount.SerialNumber, cfg.Mount.FileSystemName),
		dokanfs.WithReadOnly(cfg.Mount.ReadOnly),
		dokanfs.WithAttribReadOnlyTransMode(mode),
	}
	if cfg.Mount.CaseSensitive {
		opts = append(opts, dokanfs.WithResolver(
			pathkey.NewResolver(pathkey.WithCaseInsensitive(false)),
		))
	}
	if cfg.Mount.KeepAlive > 0 {
		if resetter, ok := host.(dokan.TimeoutResetter); ok {
			opts = append(opts, dokanfs.WithTimeoutKeeper(resetter, cfg.Mount.KeepAlive))
		} else {
			l.Log(log.TopicError, "mount.keep_alive is ignored by this host")
		}
	}
	ops, err := dokanfs.New(store.FileSystem, opts...)
	return ops, errors.Wrap(err, "create filesystem")
}
