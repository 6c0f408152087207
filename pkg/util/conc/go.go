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

package conc

import (
	"go.uber.org/zap"

	"github.com/parleychat/parley/pkg/log"
)

// Go 在新协程中执行 fn，返回用于获取结果的 Future。
//
// 与直接使用 go 关键字相比：
//   - 统一 recover 任务内的 panic 并记录日志；
//   - 调用方可通过 Future 获取结果或等待完成。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				log.Error("Conc goroutine panicked", zap.Any("panic", x))
				future.err = errPanicked(x)
			}
		}()
		res, err := fn()
		if err != nil {
			future.err = err
		} else {
			future.value = res
		}
	}()
	return future
}
