package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SimpleLogger is a prefixed logger backed by zap.
type SimpleLogger struct {
	sugar *zap.SugaredLogger
}

func newCore(out io.Writer, level zapcore.Level) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeName:   zapcore.FullNameEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)
}

func levelFor(verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return zapcore.WarnLevel
}

// New creates a logger writing to out. When verbose is false only warnings and errors are
// written.
func New(out io.Writer, prefix string, verbose bool) *SimpleLogger {
	if out == nil {
		out = os.Stdout
	}
	return &SimpleLogger{
		sugar: zap.New(newCore(out, levelFor(verbose))).Sugar().Named(prefix),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *SimpleLogger {
	return &SimpleLogger{sugar: zap.NewNop().Sugar()}
}

// WithPrefix returns a child logger sharing the output and level of l; zap joins the names with
// a dot.
func (l *SimpleLogger) WithPrefix(prefix string) *SimpleLogger {
	return &SimpleLogger{sugar: l.sugar.Named(prefix)}
}

func (l *SimpleLogger) Printf(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *SimpleLogger) Sync() error {
	return l.sugar.Sync()
}

func LogError(logger *SimpleLogger, fnName string, err error) {
	if err != nil {
		logger.Errorf("error happened at %s due to %s", fnName, err.Error())
	}
}
