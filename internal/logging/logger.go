// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger used across portalctl.
//
// Entries go to a rotated JSON file (lumberjack) and, when requested, to a
// console writer. The TUI owns the terminal, so console output is opt-in.
// Every core is wrapped so credentials never reach a sink.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Development switches the console encoder to human-readable output.
	Development bool
	// File is the JSON log path. Empty disables the file sink.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console receives a copy of every entry when non-nil.
	Console zapcore.WriteSyncer
}

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 14
)

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New builds a logger from opts. With neither a file nor a console sink the
// returned logger discards everything.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			NewFileWriter(opts),
			level,
		))
	}

	if opts.Console != nil {
		var enc zapcore.Encoder
		if opts.Development {
			cfg := encoderConfig()
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
			enc = zapcore.NewConsoleEncoder(cfg)
		} else {
			enc = zapcore.NewJSONEncoder(encoderConfig())
		}
		cores = append(cores, zapcore.NewCore(enc, opts.Console, level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	core := NewRedactingCore(zapcore.NewTee(cores...))
	return zap.New(core, zap.AddCaller()).Named("portalctl"), nil
}

// NewFileWriter returns a rotating writer for opts.File.
func NewFileWriter(opts Options) zapcore.WriteSyncer {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = DefaultMaxBackups
	}
	age := opts.MaxAgeDays
	if age <= 0 {
		age = DefaultMaxAgeDays
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		MaxAge:     age,
		Compress:   true,
	})
}

// ParseLevel maps a config level string onto a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
