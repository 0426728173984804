// Package main provides localization for the vidloop CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Input":     "入力",
		"Output":    "出力先",
		"Playback":  "再生",
		"Decoding":  "デコード",
		"Snapshots": "スナップショット",
		"Logging":   "ログ",

		// Root command
		"Decode video files into YUV frames in a loop":                                                           "動画ファイルをYUVフレームへループ再生でデコード",
		"vidloop decodes the best video stream of a file into planar YUV 4:2:0 frames and replays it endlessly.": "vidloopはファイル内の最適な映像ストリームをプレーナーYUV 4:2:0フレームにデコードし、繰り返し再生します。",

		// Play command
		"Decode a video file in a loop":                                                                     "動画ファイルをループ再生でデコード",
		"Open FILE, select its best video stream and decode it at a fixed step rate, rewinding at the end.": "FILEを開いて最適な映像ストリームを選択し、一定のステップ間隔でデコードします。終端に達すると先頭に戻ります。",

		// Probe command
		"Report the streams of video files":                                                                    "動画ファイルのストリームを報告",
		"List the streams of each FILE, the stream playback would select and the decoder that would serve it.": "各FILEのストリーム、再生時に選択されるストリーム、使用されるデコーダを一覧表示します。",

		// Input flags
		"YAML configuration file": "YAML設定ファイル",

		// Playback flags
		"Steps per second (default: 30)":                          "1秒あたりのステップ数（デフォルト: 30）",
		"Stop after this many steps (0 = until end or interrupt)": "指定ステップ数で停止（0 = 終端または中断まで）",
		"Stop at the end of the file instead of looping":          "ループせずにファイル終端で停止",
		"Copy each frame into a dedicated buffer before delivery": "配信前に各フレームを専用バッファへコピー",

		// Decoding flags
		"Decoding backend (auto, native, libav)":                               "デコードバックエンド（auto, native, libav）",
		"Path to ffmpeg executable (falls back to FFMPEG_PATH env, then PATH)": "ffmpeg実行ファイルのパス（未指定時はFFMPEG_PATH環境変数、次にPATH）",

		// Snapshot flags
		"Directory to save frame snapshots into":       "フレームのスナップショット保存先ディレクトリ",
		"Save every Nth delivered frame (default: 30)": "配信されたNフレームごとに保存（デフォルト: 30）",
		"Snapshot image format (png, jpeg)":            "スナップショットの画像形式（png, jpeg）",

		// Output flags
		"Write a Markdown playback report to this path":                "Markdown形式の再生レポートの出力先",
		"Report format (markdown, yaml)":                               "レポート形式（markdown, yaml）",
		"Write the report to this path instead of stdout":              "標準出力の代わりにレポートを書き込むパス",
		"Number of files probed in parallel (default: number of CPUs)": "並列に解析するファイル数（デフォルト: CPU数）",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "すべてのログ出力を抑制",

		// Errors
		"No input file given":                "入力ファイルが指定されていません",
		"Unknown report format %q":           "不明なレポート形式 %q",
		"%d of %d files could not be probed": "%d / %d ファイルを解析できませんでした",
	})
}
