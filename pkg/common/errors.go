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

package common

import (
	"errors"
	"fmt"
)

// Every error surfaced by the engine wraps one of these sentinels so the
// caller can classify it with errors.Is. None are recovered silently.
var (
	ErrInvalid = errors.New("invalid")
	ErrIo      = errors.New("io")
	ErrParse   = errors.New("parse")
)

func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func Iof(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIo, fmt.Sprintf(format, args...))
}

func Parsef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}
