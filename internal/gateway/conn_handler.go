package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/amqp-engine/internal/amqp/dispatcher"
	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
	cfgpkg "github.com/taoyao-code/amqp-engine/internal/config"
	"github.com/taoyao-code/amqp-engine/internal/metrics"
	"github.com/taoyao-code/amqp-engine/internal/tcpserver"
)

const (
	drainChunk = 64 * 1024
	// 空帧发送间隔下限
	minKeepalive = 10 * time.Millisecond
)

// transport 连接写出端（*tcpserver.ConnContext）
type transport interface {
	Write(b []byte) error
	Close() error
}

// Gateway 为每个 TCP 连接创建 AMQP 分发器并驱动其输入输出
type Gateway struct {
	cfg         cfgpkg.AMQPConfig
	idleTimeout time.Duration
	containerID string
	logger      *zap.Logger
	appm        *metrics.AppMetrics
	active      atomic.Int64
}

// New 创建网关；containerID 为空时生成随机 ID。appm 可为 nil。
func New(cfg cfgpkg.AMQPConfig, idleTimeout time.Duration, logger *zap.Logger, appm *metrics.AppMetrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := cfg.ContainerID
	if id == "" {
		id = "amqp-engine-" + uuid.NewString()
	}
	return &Gateway{cfg: cfg, idleTimeout: idleTimeout, containerID: id, logger: logger, appm: appm}
}

// ContainerID 本端 container-id（open 应答中使用）
func (g *Gateway) ContainerID() string { return g.containerID }

// ActiveConnections 已建立的 AMQP 连接数
func (g *Gateway) ActiveConnections() int { return int(g.active.Load()) }

// HandleConn 安装到 tcpserver.Server.SetConnHandler
func (g *Gateway) HandleConn(cc *tcpserver.ConnContext) {
	c := g.newConn(cc, cc.Logger())
	cc.SetOnRead(c.onRead)
	go func() {
		<-cc.Done()
		c.release()
	}()
}

// Conn 单个 AMQP 连接的帧层状态。
// 读回调与 keepalive 协程共用分发器，二者经 mu 串行。
type Conn struct {
	g      *Gateway
	t      transport
	logger *zap.Logger
	d      *dispatcher.Dispatcher[*Conn]

	mu       sync.Mutex
	stopC    chan struct{}
	lastSend time.Time

	headerDone bool
	acc        []byte // 未消耗的输入（半包）
	out        []byte
	closing    bool
	closed     bool

	opened   bool
	remoteID string
	sessions map[uint16]bool
}

func (g *Gateway) newConn(t transport, logger *zap.Logger) *Conn {
	c := &Conn{
		g:        g,
		t:        t,
		logger:   logger,
		out:      make([]byte, drainChunk),
		sessions: make(map[uint16]bool),
		stopC:    make(chan struct{}),
		lastSend: time.Now(),
	}
	c.d = dispatcher.New(performative.FrameTypeAMQP, c,
		dispatcher.WithLogger(logger),
		dispatcher.WithTrace(g.cfg.Trace),
		dispatcher.WithMaxFrameSize(g.cfg.MaxFrameSize),
		dispatcher.WithOutputCapacity(g.cfg.OutputCapacity),
	)
	c.d.SetHeartbeatHandler(func(ch uint16) {
		c.logger.Debug("heartbeat", zap.Uint16("channel", ch))
	})
	if g.appm != nil {
		c.d.SetMetricsCallbacks(g.appm.ObserveFrameIn, g.appm.ObserveFrameOut)
		g.appm.ConnActive.Inc()
	}
	g.active.Add(1)
	registerResponder(c.d)
	return c
}

// onRead 读循环回调：累积输入，完成协议头交换后交给分发器
func (c *Conn) onRead(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.closed {
		return
	}
	c.acc = append(c.acc, p...)

	if !c.headerDone {
		c.handshake()
	}
	if c.headerDone && !c.closing {
		c.process()
	}
	c.flush()
	if c.closing {
		_ = c.t.Close()
	}
}

// handshake 头部不足 8 字节时等待；非 AMQP 1.0.0 时回复支持的协议头后关闭
func (c *Conn) handshake() {
	if len(c.acc) < HeaderSize {
		return
	}
	h, err := ParseHeader(c.acc[:HeaderSize])
	c.consume(HeaderSize)
	if err != nil {
		c.logger.Warn("bad protocol header", zap.Error(err))
		c.frameError("header")
		c.writeHeader()
		c.closing = true
		return
	}
	c.writeHeader()
	if h != SupportedHeader {
		c.logger.Info("unsupported protocol header", zap.Stringer("header", h))
		c.frameError("header")
		c.closing = true
		return
	}
	c.headerDone = true
}

func (c *Conn) writeHeader() {
	if err := c.t.Write(SupportedHeader.Bytes()); err != nil {
		c.logger.Debug("write header failed", zap.Error(err))
		c.closing = true
	}
}

func (c *Conn) process() {
	for len(c.acc) > 0 && !c.closing {
		n, err := c.d.Input(c.acc)
		c.consume(n)
		if err == nil {
			return
		}

		var ue *dispatcher.UnknownOpcodeError
		switch {
		case errors.Is(err, errPeerClosed):
			c.logger.Info("amqp close", zap.String("remote_container", c.remoteID))
			c.closing = true
		case errors.As(err, &ue):
			c.frameError("unknown_opcode")
			if c.g.cfg.UnknownOpcodeFatal {
				c.logger.Warn("unknown opcode, closing", zap.Error(err))
				c.closing = true
				return
			}
			c.logger.Debug("unknown opcode skipped", zap.Error(err))
		case errors.Is(err, dispatcher.ErrMalformedFrame):
			c.logger.Warn("malformed frame, closing", zap.Error(err))
			c.frameError("malformed")
			c.closing = true
		default:
			c.logger.Warn("frame action failed, closing", zap.Error(err))
			c.frameError("action")
			c.closing = true
		}
	}
}

func (c *Conn) consume(n int) {
	c.acc = c.acc[:copy(c.acc, c.acc[n:])]
}

// flush 把分发器的待发送字节交给写队列
func (c *Conn) flush() {
	for c.d.Pending() > 0 {
		n := c.d.Drain(c.out)
		if err := c.t.Write(c.out[:n]); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.closing = true
			// 丢弃剩余输出
			for c.d.Drain(c.out) > 0 {
			}
			return
		}
		c.lastSend = time.Now()
	}
}

// keepalive 对端通告了 idle-time-out 时，在出站静默达到 interval 后发送空帧
func (c *Conn) keepalive(interval time.Duration) {
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-c.stopC:
			return
		case <-t.C:
		}

		c.mu.Lock()
		if c.closing || c.closed {
			c.mu.Unlock()
			return
		}
		if time.Since(c.lastSend) >= interval {
			if err := c.d.Heartbeat(0); err != nil {
				c.logger.Debug("heartbeat not queued", zap.Error(err))
			}
			c.flush()
		}
		closing := c.closing
		c.mu.Unlock()

		if closing {
			_ = c.t.Close()
			return
		}
	}
}

func (c *Conn) frameError(kind string) {
	if c.g.appm != nil {
		c.g.appm.FrameErrors.WithLabelValues(kind).Inc()
	}
}

// release 连接结束后释放分发器
func (c *Conn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.stopC)
	c.d.Close()
	c.g.active.Add(-1)
	if c.g.appm != nil {
		c.g.appm.ConnActive.Dec()
	}
	c.logger.Debug("amqp connection released", zap.String("remote_container", c.remoteID))
}
