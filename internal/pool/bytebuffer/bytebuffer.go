// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2016 Aliaksandr Valialkin, VertaMedia
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
//
// Use of this source code is governed by a MIT license that can be found
// at https://github.com/valyala/bytebufferpool/blob/master/LICENSE

// Package bytebuffer 提供可复用的字节缓冲区对象池，用于降低 GC 压力。
package bytebuffer

import "sync"

// ByteBuffer 是一块可复用的字节缓冲区。
// 通过 Get 获取，用完后调用 Put 归还。
type ByteBuffer struct {
	// B 为底层切片，调用方可直接读写。
	B []byte
}

// Len 返回缓冲区当前长度。
func (b *ByteBuffer) Len() int {
	return len(b.B)
}

// Write 实现 io.Writer，将 p 追加到缓冲区。
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.B = append(b.B, p...)
	return len(p), nil
}

// WriteByte 将单个字节追加到缓冲区。
func (b *ByteBuffer) WriteByte(c byte) error {
	b.B = append(b.B, c)
	return nil
}

// WriteString 将字符串追加到缓冲区。
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.B = append(b.B, s...)
	return len(s), nil
}

// Bytes 返回缓冲区内容。
// 返回的切片在 Put 之后不可再使用。
func (b *ByteBuffer) Bytes() []byte {
	return b.B
}

// Reset 清空缓冲区但保留底层容量。
func (b *ByteBuffer) Reset() {
	b.B = b.B[:0]
}

var pool = sync.Pool{
	New: func() any {
		return &ByteBuffer{B: make([]byte, 0, 64)}
	},
}

// Get 从池中取出一个空缓冲区。
func Get() *ByteBuffer {
	return pool.Get().(*ByteBuffer)
}

// Put 将缓冲区归还到池中。
// 归还后调用方不得再持有该缓冲区或其底层切片。
func Put(b *ByteBuffer) {
	b.Reset()
	pool.Put(b)
}
