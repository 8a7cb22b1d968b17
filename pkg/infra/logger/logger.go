package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger: JSON entries to
// logs/<component>.log through an async writer, mirrored to the console.
// LOG_LEVEL=debug enables debug output.
func NewLogger(component string) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logFile := filepath.Clean(filepath.Join("logs", component+".log"))
	if !strings.HasPrefix(logFile, "logs"+string(os.PathSeparator)) {
		log.Fatalf("Invalid log file path: must be in logs directory")
	}

	if err := os.MkdirAll("logs", 0750); err != nil {
		log.Fatalf("Failed to create logs directory: %v", err)
	}

	asyncWriter, err := NewAsyncFileWriter(logFile, 32*1024)
	if err != nil {
		log.Fatalf("Failed to initialize async log writer: %v", err)
	}

	logger.SetOutput(asyncWriter)
	logger.AddHook(NewConsoleHook())

	return logger
}

// ConsoleHook mirrors every entry to stdout alongside the file output.
type ConsoleHook struct{}

func NewConsoleHook() *ConsoleHook {
	return &ConsoleHook{}
}

func (h *ConsoleHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	fmt.Print(string(line))
	return nil
}

func (h *ConsoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
