package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"tlnote/misc"
)

type LoggerConfig struct {
	Level       string `yaml:"level" validate:"required,oneof=none debug normal"`
	Destination string `yaml:"destination,omitempty" sanitize:"path_clean,assure_dir_exists_for_file" validate:"omitempty,filepath"`
	Mode        string `yaml:"mode,omitempty" validate:"omitempty,oneof=append overwrite"`
}

type LoggingConfig struct {
	FileLogger    LoggerConfig `yaml:"file"`
	ConsoleLogger LoggerConfig `yaml:"console"`
}

// consoleEncoder uses colored levels and drops time stamps when stream is a
// terminal.
func consoleEncoder(stream *os.File) zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	if EnableColorOutput(stream) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.TimeKey = zapcore.OmitKey
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return ec
}

func openLog(name, mode string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if mode == "append" {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(name, flags, 0644)
}

// Prepare returns our standard logger: console split between stdout
// (info and warnings) and stderr (errors) plus optional file log.
func (conf *LoggingConfig) Prepare(rpt *Report) (*zap.Logger, error) {
	var lowest zapcore.Level
	consoleLP, consoleHP := zapcore.NewNopCore(), zapcore.NewNopCore()
	switch conf.ConsoleLogger.Level {
	case "normal":
		lowest = zapcore.InfoLevel
	case "debug":
		lowest = zapcore.DebugLevel
	default:
		lowest = zapcore.InvalidLevel
	}
	if lowest != zapcore.InvalidLevel {
		consoleLP = zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoder(os.Stdout)), zapcore.Lock(os.Stdout),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lowest <= lvl && lvl < zapcore.ErrorLevel
			}))
		consoleHP = zapcore.NewCore(newEncoder(consoleEncoder(os.Stderr)), zapcore.Lock(os.Stderr),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			}))
	}

	level, mode := conf.FileLogger.Level, conf.FileLogger.Mode
	if rpt != nil {
		// report always gets everything
		level, mode = "debug", "overwrite"
	}

	fileCore := zapcore.NewNopCore()
	var redirected string
	if level == "debug" || level == "normal" {
		lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
		if level == "debug" {
			lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

		// capture panic output next to the log if possible
		panicName := filepath.Join(filepath.Dir(conf.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		ef, err := openLog(panicName, mode)
		if err != nil {
			ef, err = os.CreateTemp("", misc.GetAppName()+"-panic.*.log")
		}
		if err == nil {
			debug.SetCrashOutput(ef, debug.CrashOptions{})
			rpt.Store("panic.log", ef.Name())
			ef.Close()
		}

		f, err := openLog(conf.FileLogger.Destination, mode)
		if err != nil {
			if f, err = os.CreateTemp("", misc.GetAppName()+".*.log"); err != nil {
				return nil, fmt.Errorf("unable to access file log destination (%s): %w", conf.FileLogger.Destination, err)
			}
			redirected = f.Name()
		}
		fileCore = zapcore.NewCore(enc, zapcore.Lock(f), lvl)
		rpt.Store("final.log", f.Name())
	}

	log := zap.New(zapcore.NewTee(consoleHP, consoleLP, fileCore), zap.AddCaller())
	if len(redirected) != 0 {
		log.Warn("Log file was redirected to new location", zap.String("location", redirected))
	}
	return log.Named(misc.GetAppName()), nil
}

// consoleEnc keeps console errors short: verbose error details only go to
// the file log.
type consoleEnc struct {
	zapcore.Encoder
}

func newEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return consoleEnc{zapcore.NewConsoleEncoder(cfg)}
}

func (c consoleEnc) Clone() zapcore.Encoder {
	return consoleEnc{c.Encoder.Clone()}
}

func (c consoleEnc) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if e, ok := f.Interface.(error); ok {
				f.Interface = errors.New(e.Error())
			}
		}
		out = append(out, f)
	}
	return c.Encoder.EncodeEntry(ent, out)
}
