package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	LogPath      = "./logs/"
	BackendLog   = "backend"
	HarnessLog   = "harness"
	EnvLog       = "env"
	ConfigPath   = "./config/"
	ConfigFile   = ConfigPath + "config.yaml"
	FixturesPath = "./fixtures/"
	ManifestFile = FixturesPath + "manifest.yaml"
	AccountsPath = FixturesPath + "accounts/"
)

type LogOption struct {
	Format   string
	LogDir   string
	Level    string
	Compress bool
	Console  bool
}

var logOption = LogOption{LogDir: LogPath, Level: "info", Format: "console"}

// SetLogOption changes how loggers created afterwards are built.
func SetLogOption(option LogOption) {
	if option.LogDir == "" {
		option.LogDir = LogPath
	}
	logOption = option
}

// NewLog returns a logger writing to <dir><name>.log, rotated by lumberjack.
// An empty dir logs to stderr only.
func NewLog(dir, name string) *zap.SugaredLogger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(logOption.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	if logOption.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	syncers := make([]zapcore.WriteSyncer, 0, 2)
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			panic(err)
		}
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(dir, fmt.Sprintf("%s.log", name)),
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     7,
			Compress:   logOption.Compress,
		}))
	}
	if dir == "" || logOption.Console {
		syncers = append(syncers, zapcore.Lock(os.Stderr))
	}
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core).Named(name).Sugar()
}

// NopLog is used where a component is built without a logger.
func NopLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
