package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// Options: параметры подключения и пула соединений.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgres создаёт подключение к PostgreSQL. Нулевые параметры пула заменяются значениями по умолчанию.
func NewPostgres(ctx context.Context, opts Options) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return conn, nil
}

// migrationLockID: ключ advisory-блокировки, под которой экземпляры сервиса
// применяют миграции по очереди.
const migrationLockID int64 = 0x65736372_6f77

// Migration: один SQL файл схемы.
type Migration struct {
	Name     string
	SQL      string
	Checksum string
}

// LoadMigrations читает *.sql из fsys в лексикографическом порядке имён.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось прочитать каталог миграций: %w", err)
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("postgres: не удалось прочитать миграцию %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		migrations = append(migrations, Migration{
			Name:     path.Base(name),
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return migrations, nil
}

// Pending возвращает ещё не применённые миграции. Изменённый после применения файл
// считается ошибкой: схема в базе уже не совпадает с репозиторием.
func Pending(all []Migration, applied map[string]string) ([]Migration, error) {
	var pending []Migration
	for _, m := range all {
		checksum, ok := applied[m.Name]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if checksum != "" && checksum != m.Checksum {
			return nil, fmt.Errorf("postgres: миграция %s изменена после применения", m.Name)
		}
	}
	return pending, nil
}

// RunMigrations применяет новые миграции из каталога migrationsDir.
func RunMigrations(ctx context.Context, conn *sqlx.DB, migrationsDir string) error {
	migrations, err := LoadMigrations(os.DirFS(migrationsDir))
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: не удалось начать транзакцию миграций: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("postgres: не удалось взять блокировку миграций: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("postgres: не удалось инициализировать таблицу миграций: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("postgres: не удалось обновить таблицу миграций: %w", err)
	}

	var rows []struct {
		Name     string `db:"name"`
		Checksum string `db:"checksum"`
	}
	if err := tx.SelectContext(ctx, &rows, `SELECT name, checksum FROM schema_migrations`); err != nil {
		return fmt.Errorf("postgres: не удалось получить применённые миграции: %w", err)
	}
	applied := make(map[string]string, len(rows))
	for _, r := range rows {
		applied[r.Name] = r.Checksum
	}

	pending, err := Pending(migrations, applied)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if strings.TrimSpace(m.SQL) != "" {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("postgres: не удалось выполнить миграцию %s: %w", m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			return fmt.Errorf("postgres: не удалось отметить миграцию %s: %w", m.Name, err)
		}
		logger.Log.WithField("migration", m.Name).Info("Миграция применена")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: не удалось зафиксировать миграции: %w", err)
	}
	return nil
}
