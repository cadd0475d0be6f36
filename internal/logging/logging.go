/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging provides zap-backed logr loggers for the admission
// packages and their test suites.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels used with logr's V(). Level 0 is always emitted.
const (
	// DEBUG marks high-volume diagnostics such as per-batch accounting.
	DEBUG = 1

	// TRACE marks very detailed diagnostics such as per-waiter gate events.
	TRACE = 2
)

// NewLogger returns a production logr.Logger. With debug enabled the
// underlying zap core uses the development configuration and emits
// verbosity levels up to TRACE.
func NewLogger(debug bool) logr.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		// zapr maps logr V-levels onto negative zap levels.
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	} else {
		cfg = zap.NewProductionConfig()
	}
	zapLog, err := cfg.Build()
	if err != nil {
		// Config is static; Build only fails on invalid output paths.
		panic(err)
	}
	return zapr.NewLogger(zapLog)
}

// NewTestLogger returns a development logger for use in test suites.
func NewTestLogger() logr.Logger {
	return NewLogger(true)
}
