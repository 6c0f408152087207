package network

import "errors"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageDial     Stage = "dial"     // 建立 TCP 连接
	StageRecvRaw  Stage = "recv_raw" // 读取底层原始帧
	StageDecode   Stage = "decode"   // 原始字节 -> 消息负载
	StageDispatch Stage = "dispatch" // 消息负载 -> 业务处理
	StageEncode   Stage = "encode"   // 业务消息 -> 帧字节
	StageSend     Stage = "send"     // 底层发送完成
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeDialFailed     = "network:dial_failed"
	ErrCodeRecvFailed     = "network:recv_failed"
	ErrCodeDecodeFailed   = "network:decode_failed"
	ErrCodeDispatchFailed = "network:dispatch_failed"
	ErrCodeEncodeFailed   = "network:encode_failed"
	ErrCodeSendFailed     = "network:send_failed"
)

var (
	// ErrDialFailed 表示建立 TCP 连接失败。
	ErrDialFailed = errors.New(ErrCodeDialFailed)

	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrDecodeFailed 表示在将原始字节解码为消息负载时发生错误。
	ErrDecodeFailed = errors.New(ErrCodeDecodeFailed)

	// ErrDispatchFailed 表示在将消息分发给业务处理时发生错误。
	ErrDispatchFailed = errors.New(ErrCodeDispatchFailed)

	// ErrEncodeFailed 表示在将业务消息编码为帧字节时发生错误。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)
)

