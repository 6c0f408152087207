package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/parleychat/parley/internal/pool/bytebuffer"
	"github.com/parleychat/parley/pkg/util/merr"
)

// Framer 抽象了消息帧的打包/解包能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节大端无符号整型（表示后续负载的长度）+ 负载字节。
//   - 负载为 UTF-8 文本，框架层不关心其内容。
type Framer interface {
	// WriteFrame 将负载打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, payload []byte) error

	// ReadFrame 从 r 中读取一帧数据并返回其负载。
	// 返回的切片归调用方所有。
	ReadFrame(r io.Reader) ([]byte, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
// 适用于基于流的连接（如 TCP）。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大负载大小，单位字节。
	// 为 0 时使用默认值 defaultMaxFrameSize。
	MaxFrameSize uint32
}

const defaultMaxFrameSize uint32 = 64 * 1024 // 64KB

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将负载编码为长度前缀帧并写入。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, payload []byte) error {
	length := uint32(len(payload))
	if length > f.effectiveMaxSize() {
		return merr.WrapErrFrameTooLarge(length, f.effectiveMaxSize())
	}

	// 头和负载合并成一次 Write，避免对端读到半个帧头。
	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], length)
	buf.B = append(buf.B, header[:]...)
	buf.B = append(buf.B, payload...)

	if _, err := w.Write(buf.B); err != nil {
		return errors.Wrap(err, "framer: write frame failed")
	}
	return nil
}

// ReadFrame 从流中读取一帧数据并返回负载。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "framer: read header failed")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, merr.WrapErrFrameTooLarge(length, f.effectiveMaxSize())
	}
	if length == 0 {
		// 空帧是合法的，表示空消息。
		return []byte{}, nil
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "framer: read body failed")
	}
	return payload, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}
