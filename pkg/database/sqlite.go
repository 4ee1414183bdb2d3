// Package database はSQLiteデータベースへの接続を提供する。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nao1215/shopgate/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// MigrationsDir はサービスが埋め込むマイグレーションファイルのディレクトリ名。
const MigrationsDir = "migrations"

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用する。
// path に ":memory:" を指定するとインメモリデータベースになる。
func OpenSQLite(ctx context.Context, path string, migrations fs.FS, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteは書き込みを直列化するため接続は1本に絞る。
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db, migrations, MigrationsDir, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path + "?_pragma=foreign_keys(1)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
