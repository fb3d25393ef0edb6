package flash

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/power"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

// NewRepository opens the sqlite store at cfg.DBPath, migrating the schema
// when needed.
func NewRepository(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=500"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// a single connection keeps appends strictly ordered
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Flash repository initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) AppendPowerRecord(ctx context.Context, rec Record) error {
	return r.exec(ctx, "power_record", insertPowerRecordSQL,
		int64(rec.Timestamp),
		int64(rec.Seconds),
		float64(rec.Active[0]),
		float64(rec.Active[1]),
	)
}

func (r *repository) AppendPowerEvent(ctx context.Context, ev power.PowerEvent) error {
	return r.exec(ctx, "power_event", insertPowerEventSQL,
		int64(ev.Timestamp),
		ev.Type.String(),
		int64(ev.Channel),
		int64(ev.Count),
		float64(ev.Avg),
		float64(ev.Worst),
	)
}

func (r *repository) AppendDiagnosticEvent(ctx context.Context, ev diag.Event) error {
	return r.exec(ctx, "diagnostic_event", insertDiagnosticEventSQL,
		int64(ev.Timestamp),
		ev.Type.String(),
		int64(ev.Value),
	)
}

func (r *repository) exec(ctx context.Context, table, query string, values ...any) error {
	if _, err := r.db.ExecContext(ctx, query, values...); err != nil {
		r.logger.Error().Err(err).Str("element", table).Msg("Failed to execute insert")
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	r.logger.Debug().Str("element", table).Msg("Stored in flash")
	return nil
}

func (r *repository) Close() error {
	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Flash repository closed gracefully")

	return nil
}
