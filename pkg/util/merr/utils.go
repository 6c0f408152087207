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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const InputErrorFlagKey string = "is_input_error"

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case parleyError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr 判断一个错误是否可以通过用户重新输入来恢复。
// 恢复路径是用户重发一条修正后的消息，服务器不做自动重试。
func IsRetryableErr(err error) bool {
	if err, ok := err.(parleyError); ok {
		return err.retriable
	}

	return false
}

// IsRecoverable 判断一个错误对当前连接是否可恢复。
// 可恢复错误的处理方式为：发送简短提示并重新展示相应的提示/菜单；
// 不可恢复错误（例如 ErrConnectionLost）会导致会话被拆除。
func IsRecoverable(err error) bool {
	cause := errors.Cause(err)
	if merr, ok := cause.(parleyError); ok {
		return merr.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	if merr, ok := err.(parleyError); ok {
		return merr.errType
	}

	return SystemError
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(parleyError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// Session 相关错误封装。
func WrapErrSessionNotFound(sessionID uint64, msg ...string) error {
	err := wrapFields(ErrSessionNotFound, value("sessionID", sessionID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionDuplicate(sessionID uint64, msg ...string) error {
	err := wrapFields(ErrSessionDuplicate, value("sessionID", sessionID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConnectionLost(sessionID uint64, msg ...string) error {
	err := wrapFields(ErrConnectionLost, value("sessionID", sessionID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Login 相关错误封装。
func WrapErrNameEmpty(msg ...string) error {
	var err error = ErrNameEmpty
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrNameTaken(name string, msg ...string) error {
	err := wrapFields(ErrNameTaken, value("username", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Dispatch 相关错误封装。
func WrapErrInvalidCommand(input string, msg ...string) error {
	err := wrapFields(ErrInvalidCommand, value("input", input))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrInvalidReply(reply string, msg ...string) error {
	err := wrapFields(ErrInvalidReply, value("reply", reply))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Pairing 相关错误封装。
func WrapErrTargetUnavailable(name string, msg ...string) error {
	err := wrapFields(ErrTargetUnavailable, value("target", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPeerGone(sessionID uint64, msg ...string) error {
	err := wrapFields(ErrPeerGone, value("peerID", sessionID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Wire 相关错误封装。
func WrapErrFrameTooLarge(size, limit uint32, msg ...string) error {
	err := wrapFields(ErrFrameTooLarge,
		value("size", size),
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err parleyError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err parleyError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
