package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/amqp-engine/internal/config"
)

// Server TCP 监听与连接管理，协议处理由 ConnHandler 安装
type Server struct {
	cfg    cfgpkg.TCPConfig
	logger *zap.Logger

	ln         net.Listener
	wg         sync.WaitGroup
	stopC      chan struct{}
	stopOnce   sync.Once
	nextConnID atomic.Uint64
	conns      sync.Map // id -> *ConnContext

	admission   *admission
	connHandler func(*ConnContext)

	// 可选指标回调
	onAccept    func()
	onReject    func(reason string)
	onRecvBytes func(n int)
	onSendBytes func(n int)
}

// New 创建 TCP 服务；MaxConnections/AcceptRate 大于 0 时启用对应限流
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger, stopC: make(chan struct{}), admission: newAdmission(cfg)}
}

// SetConnHandler 新连接建立后、读循环启动前调用，用于安装 OnRead
func (s *Server) SetConnHandler(h func(*ConnContext)) { s.connHandler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onReject func(string), onRecvBytes, onSendBytes func(int)) {
	s.onAccept, s.onReject = onAccept, onReject
	s.onRecvBytes, s.onSendBytes = onRecvBytes, onSendBytes
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址（端口为 0 时用于获取分配的端口）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			// 短暂错误等待后重试
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if err := s.admission.admit(context.Background()); err != nil {
			s.reject(conn, err)
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) reject(conn net.Conn, err error) {
	reason := rejectReason(err)
	s.logger.Warn("connection rejected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("reason", reason),
		zap.Error(err))
	if s.onReject != nil {
		s.onReject(reason)
	}
	_ = conn.Close()
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.admission.release()

	cc := newConnContext(s, conn)
	s.conns.Store(cc.id, cc)
	defer s.conns.Delete(cc.id)

	// 停机期间建立的连接直接关闭
	select {
	case <-s.stopC:
		_ = cc.Close()
	default:
	}

	if s.connHandler != nil {
		s.connHandler(cc)
	}
	cc.run()
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int {
	n := 0
	s.conns.Range(func(_, _ any) bool { n++; return true })
	return n
}

// MaxConnections 最大连接数，0 表示未限制
func (s *Server) MaxConnections() int { return cap(s.admission.slots) }

// AdmissionStats 建连准入统计
func (s *Server) AdmissionStats() AdmissionStats { return s.admission.stats() }

// Shutdown 停止监听、关闭全部连接并等待退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopC) })
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.conns.Range(func(_, v any) bool {
		_ = v.(*ConnContext).Close()
		return true
	})

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
