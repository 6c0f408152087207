// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Session related
	ErrSessionNotFound  = newParleyError("session not found", 1, false)
	ErrSessionDuplicate = newParleyError("session already registered", 2, false)
	ErrConnectionLost   = newParleyError("connection lost", 3, false)

	// Login related
	ErrNameEmpty = newParleyError("username cannot be empty", 100, true, WithErrorType(InputError))
	ErrNameTaken = newParleyError("username already taken", 101, true, WithErrorType(InputError))

	// Dispatch related
	ErrInvalidCommand = newParleyError("invalid menu command", 200, true, WithErrorType(InputError))
	ErrInvalidReply   = newParleyError("invalid chat request reply", 201, true, WithErrorType(InputError))

	// Pairing related
	ErrTargetUnavailable = newParleyError("target user unavailable", 300, true, WithErrorType(InputError))
	ErrPeerGone          = newParleyError("peer session has gone away", 301, false)

	// Wire related
	ErrFrameTooLarge = newParleyError("frame exceeds max size", 400, false)

	// General
	ErrOperationNotSupported = newParleyError("unsupported operation", 3000, false)

	errUnexpected = newParleyError("unexpected error", 3001, false)
)

type errorOption func(*parleyError)

func WithDetail(detail string) errorOption {
	return func(err *parleyError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *parleyError) {
		err.errType = etype
	}
}

type parleyError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newParleyError(msg string, code int32, retriable bool, options ...errorOption) parleyError {
	err := parleyError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e parleyError) code() int32 {
	return e.errCode
}

func (e parleyError) Error() string {
	return e.msg
}

func (e parleyError) Detail() string {
	return e.detail
}

func (e parleyError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(parleyError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
