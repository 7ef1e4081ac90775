package dispatcher

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/taoyao-code/amqp-engine/internal/amqp/codec"
	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
)

// Feed 尝试从 buf 开头解出一帧并分发。
//
// 返回值为消耗的字节数：
//   - 0, nil：数据不足一帧（半包），调用方保留 buf 等待更多数据
//   - size, nil：帧已处理（含心跳）
//   - size, *UnknownOpcodeError：帧已跳过，是否断开由调用方决定
//   - size, action 的错误：帧已消耗
//   - 0, ErrMalformedFrame：帧非法，连接应终止
//
// 在 action 内部调用 Feed 返回 ErrReentrantFeed。
func (d *Dispatcher[C]) Feed(buf []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if d.dispatching {
		return 0, ErrReentrantFeed
	}
	if len(buf) < 4 {
		return 0, nil
	}

	size := binary.BigEndian.Uint32(buf[0:4])
	if size < headerSize {
		return 0, malformed(fmt.Sprintf("size %d below header size", size), nil)
	}
	if d.maxFrameSize > 0 && size > d.maxFrameSize {
		return 0, malformed(fmt.Sprintf("size %d > max %d", size, d.maxFrameSize), ErrFrameTooLarge)
	}
	if uint64(size) > uint64(math.MaxInt) {
		return 0, malformed(fmt.Sprintf("size %d not addressable", size), ErrFrameTooLarge)
	}
	if uint64(len(buf)) < uint64(size) {
		return 0, nil
	}

	// 截断容量，payload 无法越过本帧边界
	frame := buf[:size:size]
	doff := int(frame[4])
	ftype := frame[5]
	channel := binary.BigEndian.Uint16(frame[6:8])

	if doff < minDoff || doff*4 > len(frame) {
		return 0, malformed(fmt.Sprintf("doff %d invalid for size %d", doff, size), nil)
	}
	if ftype != d.frameType {
		return 0, malformed(fmt.Sprintf("frame type %d, want %d", ftype, d.frameType), nil)
	}

	body := frame[doff*4:]
	if len(body) == 0 {
		d.heartbeat(channel, len(frame))
		return len(frame), nil
	}

	v, n, err := codec.Decode(body)
	if err != nil {
		return 0, malformed("performative", err)
	}
	desc, ok := v.(codec.Described)
	if !ok {
		return 0, malformed(fmt.Sprintf("body starts with %T, want described performative", v), nil)
	}
	args, err := argList(desc.Value)
	if err != nil {
		return 0, err
	}

	code, err := descriptorCode(desc.Descriptor)
	if err != nil {
		return 0, err
	}
	fn, name, ok := d.actions.Lookup(code)
	if !ok {
		return len(frame), &UnknownOpcodeError{FrameType: ftype, Channel: channel, Code: code}
	}

	d.channel = channel
	d.code = code
	d.args = args
	d.payload = body[n:]

	if d.trace {
		d.logger.Debug("<- frame",
			zap.Uint16("channel", channel),
			zap.String("performative", name),
			zap.Any("args", args),
			zap.Int("payload", len(d.payload)))
	}
	if d.onFrameIn != nil {
		d.onFrameIn(name, len(frame))
	}

	if err := d.dispatch(fn); err != nil {
		return len(frame), fmt.Errorf("action %s: %w", name, err)
	}
	return len(frame), nil
}

// Input 连续处理 buf 中的完整帧，返回总消耗字节数。
// 遇到错误时立即返回，已消耗部分（含出错的帧，若其已被消耗）计入返回值。
func (d *Dispatcher[C]) Input(buf []byte) (int, error) {
	total := 0
	for {
		n, err := d.Feed(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

func (d *Dispatcher[C]) dispatch(fn Action[C]) error {
	d.dispatching = true
	defer func() {
		d.dispatching = false
		d.channel = 0
		d.code = 0
		d.args = nil
		d.payload = nil
	}()
	return fn(d)
}

func (d *Dispatcher[C]) heartbeat(channel uint16, size int) {
	if d.trace {
		d.logger.Debug("<- heartbeat", zap.Uint16("channel", channel))
	}
	if d.onFrameIn != nil {
		d.onFrameIn("heartbeat", size)
	}
	if d.onHeartbeat != nil {
		d.onHeartbeat(channel)
	}
}

// descriptorCode 描述符须为 ulong(<=0xFF) 或已知符号
func descriptorCode(desc any) (uint8, error) {
	switch t := desc.(type) {
	case uint64:
		if t <= math.MaxUint8 {
			return uint8(t), nil
		}
	case codec.Symbol:
		if c, ok := performative.FromSymbol(t); ok {
			return uint8(c), nil
		}
	}
	return 0, malformed(fmt.Sprintf("descriptor %v (%T) does not name an opcode", desc, desc), nil)
}

// argList performative 的值必须是 list；null 等同于空参数
func argList(v any) (codec.List, error) {
	switch t := v.(type) {
	case codec.List:
		return t, nil
	case nil:
		return nil, nil
	}
	return nil, malformed(fmt.Sprintf("performative value is %T, want list", v), nil)
}
