package tcpserver

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("tcpserver: connection closed")
	// ErrWriteTimeout 写队列在超时内未腾出空间
	ErrWriteTimeout = errors.New("tcpserver: write queue timeout")
)

const (
	defaultReadBufferSize = 4096
	writeQueueSize        = 128
)

// ConnContext 单个 TCP 连接：读循环回调 OnRead，写入经异步队列串行发送
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     uint64
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	writeC chan []byte

	onRead func([]byte)
	doneC  chan struct{}
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	id := s.nextConnID.Add(1)
	return &ConnContext{
		s:      s,
		c:      c,
		id:     id,
		logger: s.logger.With(zap.Uint64("conn_id", id), zap.String("remote_addr", c.RemoteAddr().String())),
		writeC: make(chan []byte, writeQueueSize),
		doneC:  make(chan struct{}),
	}
}

// ID 连接 ID（进程内递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr 远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Logger 带连接字段的日志
func (cc *ConnContext) Logger() *zap.Logger { return cc.logger }

// SetOnRead 安装读取回调。回调在读循环中同步执行，p 在返回后即被复用。
func (cc *ConnContext) SetOnRead(h func(p []byte)) { cc.onRead = h }

// Write 异步写入（拷贝 b），队列满时最多等待写超时
func (cc *ConnContext) Write(b []byte) error {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	if cc.closed {
		return ErrConnClosed
	}
	dup := make([]byte, len(b))
	copy(dup, b)

	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case cc.writeC <- dup:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// Close 停止接受写入；已排队的数据发送完毕后关闭底层连接。可重复调用。
func (cc *ConnContext) Close() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return nil
	}
	cc.closed = true
	close(cc.writeC)
	return nil
}

// Done 连接结束通知
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	defer close(cc.doneC)

	doneW := make(chan struct{})
	go cc.writeLoop(doneW)

	size := cc.s.cfg.ReadBufferSize
	if size <= 0 {
		size = defaultReadBufferSize
	}
	buf := make([]byte, size)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				cc.onRead(buf[:n])
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				cc.logger.Info("connection idle timeout")
			} else {
				cc.logger.Debug("read loop exit", zap.Error(err))
			}
			break
		}
	}
	_ = cc.Close()
	// 读侧已结束，强制唤醒可能阻塞在写上的写循环
	_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
	<-doneW
}

func (cc *ConnContext) writeLoop(doneW chan struct{}) {
	defer close(doneW)
	defer cc.c.Close()
	failed := false
	for msg := range cc.writeC {
		if failed {
			continue
		}
		if cc.s.cfg.WriteTimeout > 0 {
			_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
		}
		n, err := cc.c.Write(msg)
		if n > 0 && cc.s.onSendBytes != nil {
			cc.s.onSendBytes(n)
		}
		if err != nil {
			cc.logger.Debug("write failed", zap.Error(err))
			failed = true
			// 关闭底层连接以结束读循环
			_ = cc.c.Close()
		}
	}
}
