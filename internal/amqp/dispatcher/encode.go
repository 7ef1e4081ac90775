package dispatcher

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/taoyao-code/amqp-engine/internal/amqp/codec"
)

// BeginFrame 开始构造一个出站帧，清空上一帧的参数与载荷
func (d *Dispatcher[C]) BeginFrame() {
	clear(d.outArgs)
	d.outArgs = d.outArgs[:0]
	d.outPayload = d.outPayload[:0]
}

// SetField 设置参数列表第 index 个字段，列表按需增长。
// nil 与未设置等价：末尾的缺省字段被省略，中间的编码为 null。
func (d *Dispatcher[C]) SetField(index int, v any) error {
	if index < 0 || index >= MaxFields {
		return fmt.Errorf("%w: %d", ErrFieldIndex, index)
	}
	for len(d.outArgs) <= index {
		d.outArgs = append(d.outArgs, nil)
	}
	d.outArgs[index] = v
	return nil
}

// AppendPayload 追加载荷（拷贝，调用方可立即复用 b）
func (d *Dispatcher[C]) AppendPayload(b []byte) {
	d.outPayload = append(d.outPayload, b...)
}

// Finalize 编码当前出站帧并追加到输出缓冲。
// 帧整体放不下时返回 *CapacityError，输出缓冲不变；Drain 之后可直接重试。
func (d *Dispatcher[C]) Finalize(channel uint16, code uint8) error {
	if d.closed {
		return ErrClosed
	}

	d.scratch = d.scratch[:headerSize]
	clear(d.scratch)

	args := d.outArgs
	for len(args) > 0 && args[len(args)-1] == nil {
		args = args[:len(args)-1]
	}
	var err error
	d.scratch, err = codec.Append(d.scratch, codec.Described{
		Descriptor: uint64(code),
		Value:      codec.List(args),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.name(code), err)
	}

	size := len(d.scratch) + len(d.outPayload)
	if err := d.reserve(size); err != nil {
		return err
	}
	putHeader(d.scratch, uint32(size), d.frameType, channel)
	d.output = append(d.output, d.scratch...)
	d.output = append(d.output, d.outPayload...)

	name := d.name(code)
	if d.trace {
		d.logger.Debug("-> frame",
			zap.Uint16("channel", channel),
			zap.String("performative", name),
			zap.Any("args", args),
			zap.Int("payload", len(d.outPayload)))
	}
	if d.onFrameOut != nil {
		d.onFrameOut(name, size)
	}
	return nil
}

// Heartbeat 追加一个空帧（保活）
func (d *Dispatcher[C]) Heartbeat(channel uint16) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.reserve(headerSize); err != nil {
		return err
	}
	var hdr [headerSize]byte
	putHeader(hdr[:], headerSize, d.frameType, channel)
	d.output = append(d.output, hdr[:]...)

	if d.trace {
		d.logger.Debug("-> heartbeat", zap.Uint16("channel", channel))
	}
	if d.onFrameOut != nil {
		d.onFrameOut("heartbeat", headerSize)
	}
	return nil
}

// reserve 检查 size 字节的帧能否整体放入输出缓冲
func (d *Dispatcher[C]) reserve(size int) error {
	limit := d.outboundLimit()
	if uint64(size) > math.MaxUint32 || (limit > 0 && uint64(size) > uint64(limit)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	if len(d.output)+size > d.capacity {
		return &CapacityError{Need: size, Pending: len(d.output), Capacity: d.capacity}
	}
	return nil
}

func putHeader(b []byte, size uint32, frameType uint8, channel uint16) {
	binary.BigEndian.PutUint32(b[0:4], size)
	b[4] = minDoff
	b[5] = frameType
	binary.BigEndian.PutUint16(b[6:8], channel)
}
