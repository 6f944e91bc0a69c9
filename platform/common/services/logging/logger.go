/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"runtime"
	"strings"
	"testing"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/flogging/floggingtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const thisPackage = "github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"

// Logger provides logging API
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	IsEnabledFor(level zapcore.Level) bool
	Named(name string) Logger
	Warningf(format string, args ...interface{})
	With(args ...interface{}) Logger
	Zap() *zap.Logger
}

type Recorder = floggingtest.Recorder

type Option = floggingtest.Option

// MustGetLogger returns a logger named after the calling package.
// The optional params are appended to the name, dot-separated.
func MustGetLogger(params ...string) Logger {
	pkg, err := GetPackageName()
	if err != nil {
		panic(err)
	}
	return &logger{FabricLogger: flogging.MustGetLogger(loggerName(pkg, params...))}
}

// NewTestLogger returns a logger whose entries are recorded for later assertions
func NewTestLogger(tb testing.TB, options ...Option) (Logger, *Recorder) {
	l, r := floggingtest.NewTestLogger(tb, options...)
	return &logger{FabricLogger: l}, r
}

// GetPackageName returns the import path of the first caller outside this package
func GetPackageName() (string, error) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if pkg := packageOf(frame.Function); len(pkg) > 0 && pkg != thisPackage {
			return pkg, nil
		}
		if !more {
			break
		}
	}
	return "", errors.New("unable to retrieve caller package")
}

func packageOf(fullFuncName string) string {
	if len(fullFuncName) == 0 {
		return ""
	}
	lastSlash := strings.LastIndex(fullFuncName, "/")
	if lastSlash < 0 {
		lastSlash = 0
	}
	dot := strings.Index(fullFuncName[lastSlash:], ".")
	if dot < 0 {
		return fullFuncName
	}
	return fullFuncName[:lastSlash+dot]
}

func loggerName(pkg string, params ...string) string {
	name := strings.Join(append([]string{strings.ReplaceAll(pkg, "/", ".")}, params...), ".")
	for old, newVal := range Replacers() {
		name = strings.ReplaceAll(name, old, newVal)
	}
	return name
}

type logger struct {
	*flogging.FabricLogger
}

func (l *logger) Named(name string) Logger {
	return &logger{FabricLogger: l.FabricLogger.Named(name)}
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{FabricLogger: l.FabricLogger.With(args...)}
}
