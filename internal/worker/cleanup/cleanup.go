// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// セッションは有効期限を過ぎても猶予期間（デフォルト7日）は残し、
// それを超えたものを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sqlx.DB、*sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionCleanupJob は期限切れセッションの削除ジョブ。
// 削除条件は期限のみで、何度実行しても結果は変わらない。
type SessionCleanupJob struct {
	db        Executor
	logger    *slog.Logger
	GraceDays int // 有効期限切れ後に保持する日数（デフォルト: 7）
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:        db,
		logger:    logger,
		GraceDays: 7,
	}
}

// Run はexpires_atが猶予期間より前のセッションを削除する。
// 負のGraceDaysは0として扱う。削除対象がない場合でもエラーにならない。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	days := j.GraceDays
	if days < 0 {
		days = 0
	}
	grace := fmt.Sprintf("%d days", days)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < now() - $1::interval`, grace)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_days", days),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("grace_days", days),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
