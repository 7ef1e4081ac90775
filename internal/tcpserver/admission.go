package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	cfgpkg "github.com/taoyao-code/amqp-engine/internal/config"
)

// 拒绝原因，同时作为指标 label
const (
	RejectRate  = "rate"
	RejectLimit = "limit"
)

var (
	// ErrRateExceeded 建连速率超限
	ErrRateExceeded = errors.New("tcpserver: accept rate exceeded")
	// ErrLimitExceeded 并发连接数已满
	ErrLimitExceeded = errors.New("tcpserver: connection limit exceeded")
)

// admission 新连接准入：先过令牌桶，再占并发许可。两者均可关闭。
type admission struct {
	bucket *rate.Limiter // nil 不限速
	slots  chan struct{} // nil 不限并发
	wait   time.Duration

	held         atomic.Int64
	admitted     atomic.Int64
	rateRejects  atomic.Int64
	limitRejects atomic.Int64
}

func newAdmission(cfg cfgpkg.TCPConfig) *admission {
	a := &admission{wait: cfg.AcquireTimeout}
	if a.wait <= 0 {
		a.wait = time.Second
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst <= 0 {
			burst = cfg.AcceptRate * 2
		}
		a.bucket = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	if cfg.MaxConnections > 0 {
		a.slots = make(chan struct{}, cfg.MaxConnections)
	}
	return a
}

// admit 成功后必须调用 release 归还许可
func (a *admission) admit(ctx context.Context) error {
	if a.bucket != nil && !a.bucket.Allow() {
		a.rateRejects.Add(1)
		return ErrRateExceeded
	}
	if a.slots != nil {
		ctx, cancel := context.WithTimeout(ctx, a.wait)
		defer cancel()
		select {
		case a.slots <- struct{}{}:
			a.held.Add(1)
		case <-ctx.Done():
			a.limitRejects.Add(1)
			return fmt.Errorf("%w: max=%d", ErrLimitExceeded, cap(a.slots))
		}
	}
	a.admitted.Add(1)
	return nil
}

func (a *admission) release() {
	if a.slots == nil {
		return
	}
	select {
	case <-a.slots:
		a.held.Add(-1)
	default:
	}
}

// rejectReason 把 admit 的错误映射为指标 label
func rejectReason(err error) string {
	if errors.Is(err, ErrRateExceeded) {
		return RejectRate
	}
	return RejectLimit
}

// AdmissionStats 准入统计；MaxConnections/RatePerSecond 为 0 表示未启用
type AdmissionStats struct {
	MaxConnections int              `json:"max_connections"`
	HeldSlots      int              `json:"held_slots"`
	RatePerSecond  float64          `json:"rate_per_second"`
	Burst          int              `json:"burst"`
	AdmittedTotal  int64            `json:"admitted_total"`
	Rejected       map[string]int64 `json:"rejected"`
}

func (a *admission) stats() AdmissionStats {
	st := AdmissionStats{
		MaxConnections: cap(a.slots),
		HeldSlots:      int(a.held.Load()),
		AdmittedTotal:  a.admitted.Load(),
		Rejected: map[string]int64{
			RejectRate:  a.rateRejects.Load(),
			RejectLimit: a.limitRejects.Load(),
		},
	}
	if a.bucket != nil {
		st.RatePerSecond = float64(a.bucket.Limit())
		st.Burst = a.bucket.Burst()
	}
	return st
}
