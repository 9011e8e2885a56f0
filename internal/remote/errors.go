// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMalformedResponse means the response body matched no known envelope
// shape. Collection reads absorb it and return an empty sequence.
var ErrMalformedResponse = errors.New("response matched no known shape")

// TimeoutError is returned when a call exceeds the client's deadline. The
// caller may retry; nothing is retried automatically.
type TimeoutError struct {
	Resource string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out after %s", e.Resource, e.After)
}

// RequestFailedError carries a non-success HTTP outcome.
type RequestFailedError struct {
	Resource string
	Status   int
	Message  string
}

func (e *RequestFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Resource, e.Status, msg)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// AsRequestFailed unwraps a RequestFailedError from err.
func AsRequestFailed(err error) (*RequestFailedError, bool) {
	var rf *RequestFailedError
	if errors.As(err, &rf) {
		return rf, true
	}
	return nil, false
}
