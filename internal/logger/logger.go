// Package logger はslogによるJSON構造化ログの初期化を提供する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// level はグローバルロガーのレベル。設定読み込み後に変更できる。
var level = new(slog.LevelVar)

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はinfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup は各writerにJSONで出力するslog.Loggerを生成して返す。
// writerが複数の場合はslog-multiのFanoutで同じレコードをすべてに書き込む。
func Setup(lv slog.Leveler, writers ...io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lv}

	handlers := make([]slog.Handler, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// SetupDefault はwへのJSONログをグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(level, w))
}

// Configure は設定値に従ってグローバルロガーを再構成する。
// logFileが指定された場合は追記モードで開き、wと併せて出力する。
// 返却されたCloserはシャットダウン時に閉じること。
func Configure(w io.Writer, levelName, logFile string) (io.Closer, error) {
	if w == nil {
		w = os.Stdout
	}
	level.Set(ParseLevel(levelName))

	if logFile == "" {
		slog.SetDefault(Setup(level, w))
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	slog.SetDefault(Setup(level, w, f))
	return f, nil
}
