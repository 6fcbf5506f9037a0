// Package dlog is the library-wide structured logger: slog behind
// package-level helpers, fanned out to a colorized console handler and
// optional JSON/text log files with daily archiving.
package dlog

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	slogmulti "github.com/samber/slog-multi"
)

var Log = slog.New(NewPrettyHandler(os.Stdout, &slog.HandlerOptions{}))

func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Setup switches the package logger to a fanout over the console and
// JSON/text files under dir. When archiveCron is non-empty the files
// rotate into a dated subdirectory on that schedule.
func Setup(dir string, archiveCron string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	jsonFile, err := openLog(filepath.Join(dir, "default.json"))
	if err != nil {
		return err
	}
	textFile, err := openLog(filepath.Join(dir, "default.txt"))
	if err != nil {
		jsonFile.Close()
		return err
	}

	opts := &slog.HandlerOptions{AddSource: true}
	Log = slog.New(slogmulti.Fanout(
		NewPrettyHandler(os.Stdout, opts),
		slog.NewJSONHandler(jsonFile, opts),
		slog.NewTextHandler(textFile, opts),
	))

	if archiveCron != "" {
		archiver := &Archiver{Dir: dir}
		c := cron.New()
		entryID, err := c.AddFunc(archiveCron, archiver.Process)
		if err != nil {
			return err
		}
		c.Start()
		Info("scheduled log archiver", "entryID", entryID)
	}
	return nil
}

func openLog(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
}
