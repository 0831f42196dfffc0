// Copyright 2024 pykello
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var glog *zap.Logger

func init() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(zapcore.InfoLevel),
	)
	glog = zap.New(core)
}

func Debug(msg string, fields ...zap.Field) {
	glog.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	glog.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	glog.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	glog.Error(msg, fields...)
}
