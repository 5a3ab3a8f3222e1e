package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/api"
	"plaichat/internal/config"
	"plaichat/internal/db"
	"plaichat/internal/i18n"
	"plaichat/internal/logger"
	"plaichat/internal/metrics"
	"plaichat/internal/session"
	"plaichat/internal/tokens"
	"plaichat/internal/transcribe"
)

// app holds what every command needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	conn    *sql.DB
	store   *tokens.SQLiteStore
	client  *api.Client
	metrics *metrics.Metrics
	tr      *i18n.Translator

	logFile io.Closer
}

// setup loads configuration and opens the state database. With logToFile
// the log goes to cfg.Log.File because the chat UI owns the terminal.
func setup(cmd *cobra.Command, v *viper.Viper, logToFile bool) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logCfg := logger.FromConfig(cfg.Log.Level, cfg.Log.Format)
	logCfg.Output = cmd.ErrOrStderr()
	if logToFile && cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logCfg.Output = f
		a.logFile = f
	}
	a.log = logger.New(logCfg)

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.conn = conn
	a.store = tokens.NewSQLiteStore(conn, a.log)
	a.metrics = metrics.New()
	a.client = api.New(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(a.log),
		api.WithMetrics(a.metrics),
	)
	a.tr = i18n.Detect(a.store, cfg.Lang)

	a.log.Debug("configuration loaded", "api_url", cfg.APIURL, "db_path", cfg.DBPath)
	return a, nil
}

func (a *app) Close() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// session resolves the stored session and loads its threads.
func (a *app) session(ctx context.Context) (*session.Context, error) {
	sess := session.New(a.store, a.client, a.client, a.log)
	if err := sess.Init(ctx); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%s: run plaichat login first", a.tr.T("no_auth_token"))
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

func (a *app) transcriber() (*transcribe.Transcriber, error) {
	return transcribe.New(transcribe.Config{
		APIKey:        a.cfg.OpenAI.APIKey,
		BaseURL:       a.cfg.OpenAI.BaseURL,
		ManagementKey: a.cfg.OpenAI.UsersManagementKey,
	}, a.client, a.log)
}
