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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrNameTaken("alice")
	errors.Wrap(err, "failed to bind username")
	s.ErrorIs(err, ErrNameTaken)
	s.Equal(Code(ErrNameTaken), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newParleyError("new error", ErrNameTaken.errCode, false)
	s.True(sameCodeErr.Is(ErrNameTaken))
}

func (s *ErrSuite) TestWrap() {
	// Session 相关错误。
	s.ErrorIs(WrapErrSessionNotFound(42, "failed to route message"), ErrSessionNotFound)
	s.ErrorIs(WrapErrSessionDuplicate(42, "failed to register"), ErrSessionDuplicate)
	s.ErrorIs(WrapErrConnectionLost(42, "send failed"), ErrConnectionLost)

	// Login 相关错误。
	s.ErrorIs(WrapErrNameEmpty("login rejected"), ErrNameEmpty)
	s.ErrorIs(WrapErrNameTaken("alice", "login rejected"), ErrNameTaken)

	// Dispatch 相关错误。
	s.ErrorIs(WrapErrInvalidCommand("5", "menu dispatch"), ErrInvalidCommand)
	s.ErrorIs(WrapErrInvalidReply("maybe", "request reply"), ErrInvalidReply)

	// Pairing 相关错误。
	s.ErrorIs(WrapErrTargetUnavailable("bob", "pairing rejected"), ErrTargetUnavailable)
	s.ErrorIs(WrapErrPeerGone(42, "peer disconnected"), ErrPeerGone)

	// Wire 相关错误。
	s.ErrorIs(WrapErrFrameTooLarge(4096, 248), ErrFrameTooLarge)
}

func (s *ErrSuite) TestRecoverable() {
	s.True(IsRecoverable(ErrNameEmpty))
	s.True(IsRecoverable(ErrNameTaken))
	s.True(IsRecoverable(WrapErrInvalidCommand("x")))
	s.True(IsRecoverable(WrapErrTargetUnavailable("bob")))

	s.False(IsRecoverable(ErrConnectionLost))
	s.False(IsRecoverable(WrapErrSessionNotFound(1)))
	s.False(IsRecoverable(errors.New("plain error")))
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(ErrNameTaken))
	s.Equal(SystemError, GetErrorType(ErrConnectionLost))
	s.Equal(InputError, GetErrorType(WrapErrAsInputError(ErrPeerGone)))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	s.Error(Combine(nil, err))
	s.Error(Combine(err, nil))
	s.NoError(Combine(nil, nil))
}

func (s *ErrSuite) TestCombineOnlyNil() {
	s.NoError(Combine(nil, nil))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
