package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"RecruitChain/deploy/migrations"
)

const (
	createMigrationTableSQL = `CREATE TABLE IF NOT EXISTS recruitchain_migrations (
    version VARCHAR(32) NOT NULL PRIMARY KEY,
    name VARCHAR(128) NOT NULL,
    applied_at BIGINT NOT NULL
)`
	selectAppliedSQL = `SELECT version FROM recruitchain_migrations`
	insertAppliedSQL = `INSERT INTO recruitchain_migrations (version, name, applied_at) VALUES (?, ?, ?)`
)

// migration is one embedded SQL file split into executable statements.
type migration struct {
	version    string
	name       string
	statements []string
}

// migrator applies the embedded schema files that are not yet recorded in
// recruitchain_migrations. Each file runs in its own transaction.
type migrator struct {
	db    *sql.DB
	files fs.FS
	now   func() time.Time
}

func newMigrator(db *sql.DB) *migrator {
	return &migrator{db: db, files: migrations.Files, now: time.Now}
}

func (m *migrator) run(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createMigrationTableSQL); err != nil {
		return fmt.Errorf("创建迁移记录表失败: %w", err)
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	pending, err := loadMigrations(m.files)
	if err != nil {
		return err
	}
	for _, mig := range pending {
		if applied[mig.version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, fmt.Errorf("查询已执行迁移失败: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析迁移版本失败: %w", err)
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

func (m *migrator) apply(ctx context.Context, mig migration) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range mig.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", mig.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedSQL, mig.version, mig.name, m.now().Unix()); err != nil {
		return fmt.Errorf("记录迁移 %s 失败: %w", mig.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", mig.name, err)
	}
	return nil
}

// loadMigrations returns the *.sql files of fsys ordered by file name, which
// starts with the zero-padded version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("列出迁移文件失败: %w", err)
	}
	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		out = append(out, migration{version: migrationVersion(name), name: name, statements: statements})
	}
	return out, nil
}

func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// migrationVersion maps "0001_create_sessions.sql" to "0001".
func migrationVersion(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if version, _, ok := strings.Cut(base, "_"); ok && version != "" {
		return version
	}
	return base
}
