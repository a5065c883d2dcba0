package sqlite

import (
	"context"
	"embed"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngprep/internal/infra"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
	now   func() time.Time
}

// NewSQLiteClient opens (creating if needed) dir/file and applies pending migrations.
func NewSQLiteClient(ctx context.Context, dir, file string) (*sqliteClient, error) {
	workDir, err := infra.GetWorkDir(dir)
	if err != nil {
		return nil, err
	}
	dsn := filepath.Join(workDir, file) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	dbx, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	dbx.SetMaxOpenConns(4)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, errors.Wrap(err, "migrate up")
	}
	if n > 0 {
		log.WithField("context", "sqlite").Infof("applied %d migrations!", n)
	}

	return &sqliteClient{db: dbx, now: time.Now}, nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}
