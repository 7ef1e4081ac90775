package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame 帧结构非法，连接在该层已不可恢复
	ErrMalformedFrame = errors.New("dispatcher: malformed frame")
	// ErrFrameTooLarge 帧超过协商的最大帧长
	ErrFrameTooLarge = errors.New("dispatcher: frame exceeds max frame size")
	// ErrUnknownOpcode 未注册的 performative
	ErrUnknownOpcode = errors.New("dispatcher: unknown opcode")
	// ErrOutputFull 输出缓冲已满，需先 Drain
	ErrOutputFull = errors.New("dispatcher: output capacity exceeded")
	// ErrClosed 分发器已关闭
	ErrClosed = errors.New("dispatcher: closed")
	// ErrReentrantFeed 在 action 内部再次调用 Feed
	ErrReentrantFeed = errors.New("dispatcher: feed called from inside an action")
	// ErrFieldIndex 字段下标越界
	ErrFieldIndex = errors.New("dispatcher: field index out of range")
	// ErrCapacityBelowPending 新容量小于已排队字节数
	ErrCapacityBelowPending = errors.New("dispatcher: capacity below pending bytes")
)

// FrameError 入站帧解析失败
type FrameError struct {
	Reason string
	Err    error // 底层原因（编解码错误等），可为空
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrMalformedFrame, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrMalformedFrame, e.Reason)
}

func (e *FrameError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedFrame, e.Err}
	}
	return []error{ErrMalformedFrame}
}

func malformed(reason string, err error) error {
	return &FrameError{Reason: reason, Err: err}
}

// UnknownOpcodeError 帧合法但没有对应的 action；帧已被消耗，是否致命由调用方决定
type UnknownOpcodeError struct {
	FrameType uint8
	Channel   uint16
	Code      uint8
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("%v: 0x%02X on channel %d", ErrUnknownOpcode, e.Code, e.Channel)
}

func (e *UnknownOpcodeError) Unwrap() error { return ErrUnknownOpcode }

// CapacityError 输出帧放不下
type CapacityError struct {
	Need     int
	Pending  int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v: need %d, pending %d, capacity %d", ErrOutputFull, e.Need, e.Pending, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrOutputFull }
