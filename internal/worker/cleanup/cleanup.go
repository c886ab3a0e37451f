// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// PostgreSQLとメモリのセッションストアが対象。RedisはTTLで失効するため不要。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/repository"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = 15 * time.Minute

// CleanupJob は有効期限を過ぎたセッションを削除するジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	purger   repository.ExpiredSessionPurger
	logger   *slog.Logger
	Interval time.Duration
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func NewCleanupJob(purger repository.ExpiredSessionPurger, logger *slog.Logger, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CleanupJob{
		purger:   purger,
		logger:   logger,
		Interval: interval,
		now:      time.Now,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.purger.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後Interval間隔でRunを実行する。
// コンテキストがキャンセルされるまでブロックする。失敗は記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context) {
	j.logger.Info("セッションクリーンアップジョブを開始しました",
		slog.Duration("interval", j.Interval),
	)

	_ = j.Run(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
