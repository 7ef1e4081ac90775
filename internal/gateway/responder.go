package gateway

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/amqp-engine/internal/amqp/dispatcher"
	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
)

const (
	// 应答 begin 时通告的窗口
	sessionWindow uint32 = 2048
	// 协议规定的 max-frame-size 下限
	minMaxFrameSize uint32 = 512
)

var (
	errDuplicateOpen = errors.New("open received twice")
	errNotOpen       = errors.New("frame before open")
	// errPeerClosed close 已应答，停止处理后续帧
	errPeerClosed    = errors.New("peer closed connection")
)

// registerResponder 全部 performative 走同一入口：open/begin/end/close 原样回应，
// 其余只记录（链路与会话状态机不在帧层处理）。
func registerResponder(d *dispatcher.Dispatcher[*Conn]) {
	d.RegisterAll(respond)
}

func respond(d *dispatcher.Dispatcher[*Conn]) error {
	c := d.Context()
	code := performative.Code(d.Code())
	if code != performative.Open && !c.opened {
		return fmt.Errorf("%w: %s", errNotOpen, code)
	}

	switch code {
	case performative.Open:
		return c.onOpen(d)
	case performative.Begin:
		return c.onBegin(d)
	case performative.End:
		return c.onEnd(d)
	case performative.Close:
		return c.onClose(d)
	}
	c.logger.Debug("frame not answered",
		zap.Stringer("performative", code),
		zap.Uint16("channel", d.Channel()),
		zap.Int("payload", len(d.Payload())))
	return nil
}

func (c *Conn) onOpen(d *dispatcher.Dispatcher[*Conn]) error {
	if c.opened {
		return errDuplicateOpen
	}
	id, ok := d.Arg(performative.OpenContainerID).(string)
	if !ok {
		return errors.New("open without container-id")
	}
	remoteMax, _ := d.Arg(performative.OpenMaxFrameSize).(uint32)
	if remoteMax > 0 && remoteMax < minMaxFrameSize {
		return fmt.Errorf("peer max-frame-size %d below %d", remoteMax, minMaxFrameSize)
	}
	idle, _ := d.Arg(performative.OpenIdleTimeOut).(uint32)

	c.opened = true
	c.remoteID = id
	d.SetRemoteMaxFrameSize(remoteMax)
	c.logger.Info("amqp open",
		zap.String("remote_container", id),
		zap.Any("hostname", d.Arg(performative.OpenHostname)),
		zap.Uint32("max_frame_size", remoteMax),
		zap.Uint32("idle_time_out_ms", idle))
	if idle > 0 {
		// 按对端超时的一半发送空帧
		interval := max(time.Duration(idle)*time.Millisecond/2, minKeepalive)
		go c.keepalive(interval)
	}

	cfg := c.g.cfg
	d.BeginFrame()
	fields := []struct {
		i int
		v any
	}{
		{performative.OpenContainerID, c.g.containerID},
		{performative.OpenMaxFrameSize, optionalUint32(cfg.MaxFrameSize)},
		{performative.OpenChannelMax, cfg.ChannelMax},
		{performative.OpenIdleTimeOut, optionalUint32(uint32(c.g.idleTimeout.Milliseconds()))},
	}
	for _, f := range fields {
		if err := d.SetField(f.i, f.v); err != nil {
			return err
		}
	}
	return c.reply(d, 0, performative.Open)
}

func (c *Conn) onBegin(d *dispatcher.Dispatcher[*Conn]) error {
	ch := d.Channel()
	if ch > c.g.cfg.ChannelMax {
		return fmt.Errorf("begin on channel %d above channel-max %d", ch, c.g.cfg.ChannelMax)
	}
	if c.sessions[ch] {
		return fmt.Errorf("begin on channel %d already in use", ch)
	}
	c.sessions[ch] = true

	d.BeginFrame()
	for i, v := range []any{ch, uint32(0), sessionWindow, sessionWindow} {
		if err := d.SetField(performative.BeginRemoteChannel+i, v); err != nil {
			return err
		}
	}
	return c.reply(d, ch, performative.Begin)
}

func (c *Conn) onEnd(d *dispatcher.Dispatcher[*Conn]) error {
	ch := d.Channel()
	if !c.sessions[ch] {
		return fmt.Errorf("end on channel %d without begin", ch)
	}
	delete(c.sessions, ch)
	if e := d.Arg(performative.EndError); e != nil {
		c.logger.Info("session ended with error", zap.Uint16("channel", ch), zap.Any("error", e))
	}
	d.BeginFrame()
	return c.reply(d, ch, performative.End)
}

func (c *Conn) onClose(d *dispatcher.Dispatcher[*Conn]) error {
	if e := d.Arg(performative.CloseError); e != nil {
		c.logger.Info("peer closed with error", zap.Any("error", e))
	}
	d.BeginFrame()
	if err := c.reply(d, 0, performative.Close); err != nil {
		return err
	}
	return errPeerClosed
}

// reply 输出缓冲满时先交给写队列再重试一次
func (c *Conn) reply(d *dispatcher.Dispatcher[*Conn], ch uint16, code performative.Code) error {
	err := d.Finalize(ch, uint8(code))
	if errors.Is(err, dispatcher.ErrOutputFull) {
		c.flush()
		err = d.Finalize(ch, uint8(code))
	}
	return err
}

// optionalUint32 0 表示不通告该字段
func optionalUint32(v uint32) any {
	if v == 0 {
		return nil
	}
	return v
}
