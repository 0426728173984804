package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Pipeline lifecycle (info)
		"Opening %s":                       "%s を開いています",
		"Playing stream #%d (%s %dx%d)":    "ストリーム #%d を再生中 (%s %dx%d)",
		"Looping %s":                       "%s を先頭から再生します",
		"End of %s":                        "%s の終端に達しました",
		"Closed %s":                        "%s を閉じました",
		"Interrupted, shutting down...":    "中断されました。シャットダウン中...",
		"Played %d steps, %d frames delivered, %d loops": "%d ステップ再生, %d フレーム配信, %d 回ループ",

		// Stream dump (debug)
		"Input %s, format %s, duration %d ms":         "入力 %s, フォーマット %s, 長さ %d ms",
		"Stream #%d: %s %s %dx%d %s, %d b/s, default=%t": "ストリーム #%d: %s %s %dx%d %s, %d b/s, デフォルト=%t",
		"Flushed %d frames":                           "%d フレームをフラッシュしました",
		"Seeked stream #%d to start":                  "ストリーム #%d を先頭にシークしました",
		"Rollback of %s: %s":                          "%s のロールバック: %s",
		"Drain on close failed after %d frames: %s":   "クローズ時のドレインが %d フレーム後に失敗しました: %s",

		// Decoder components (debug)
		"Detected %s as %s":               "%s を %s として検出しました",
		"Using ffmpeg at %s":               "ffmpeg を使用: %s",
		"Restarting ffmpeg":                "ffmpeg を再起動しています",
		"Decoder opened: %s %dx%d":         "デコーダを開きました: %s %dx%d",
		"Font %s unavailable, using default face: %s": "フォント %s を利用できないため既定のフォントを使用します: %s",
		"Saved snapshot %s":                "スナップショットを保存しました: %s",
		"Saved %d snapshots to %s":         "%d 枚のスナップショットを %s に保存しました",

		// Warnings
		"Dropped frame: %s":                "フレームを破棄しました: %s",
		"Decoder flush failed: %s":         "デコーダのフラッシュに失敗しました: %s",
		"Read failed, restarting: %s":      "読み込みに失敗しました。先頭から再開します: %s",
		"Frame sink rejected frame at pts %d: %s": "フレームシンクが pts %d のフレームを拒否しました: %s",
		"Close before open failed: %s":     "オープン前のクローズに失敗しました: %s",
		"Close failed: %s":                 "クローズに失敗しました: %s",
		"ffmpeg stderr: %s":                "ffmpeg 標準エラー: %s",

		// Errors
		"Failed to open %s: %s":            "%s を開けませんでした: %s",
		"Failed to restart %s: %s":         "%s の再開に失敗しました: %s",
		"Failed to probe %s: %s":           "%s の解析に失敗しました: %s",
		"Failed to write summary: %s":      "サマリーの書き込みに失敗しました: %s",
	})
}
