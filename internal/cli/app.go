package cli

import (
	"fmt"
	"time"

	"github.com/conorfennell/prepdeck/internal/config"
	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/lock"
	"github.com/conorfennell/prepdeck/internal/logging"
	"github.com/conorfennell/prepdeck/internal/repository"
	"github.com/conorfennell/prepdeck/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every command needs once flags are parsed.
type app struct {
	env  Env
	now  func() time.Time
	cfg  *config.Config
	log  *zap.Logger
	db   *storage.DB
	repo *repository.Repository
}

func newApp(env Env) *app {
	now := env.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC().Round(0) }
	}
	return &app{env: env, now: now, log: zap.NewNop()}
}

// open loads configuration, then the repository behind its lock.
func (a *app) open(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Options{File: file, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log

	if err := config.EnsureDir(cfg.DB.Path); err != nil {
		return &domain.StorageError{Op: "open", Err: fmt.Errorf("create database dir: %w", err)}
	}
	if err := config.EnsureDir(cfg.DB.Lock); err != nil {
		return &domain.StorageError{Op: "open", Err: fmt.Errorf("create lock dir: %w", err)}
	}
	db, err := storage.Open(cmd.Context(), cfg.DB.Path)
	if err != nil {
		return &domain.StorageError{Op: "open", Err: err}
	}
	a.db = db

	repo, err := repository.Open(cmd.Context(), db,
		repository.WithLocker(lock.New(cfg.DB.Lock, 0).WithTimeout(cfg.DB.LockTimeout)),
		repository.WithPolicy(cfg.Schedule),
		repository.WithLogger(log.Named("repository")),
		repository.WithClock(a.now),
	)
	if err != nil {
		return err
	}
	a.repo = repo
	a.log.Debug("repository opened", zap.String("db", cfg.DB.Path), zap.Int("entries", repo.Len()))
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
