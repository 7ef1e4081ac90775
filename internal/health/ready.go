package health

import (
	"context"
	"sync/atomic"
)

// Readiness 监听器就绪标记，作为检查项 "listener" 参与聚合
type Readiness struct {
	tcpReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetTCPReady(v bool) { r.tcpReady.Store(v) }

// Ready AMQP 监听已启动且未进入停机
func (r *Readiness) Ready() bool { return r.tcpReady.Load() }

func (r *Readiness) Name() string { return "listener" }

func (r *Readiness) Check(context.Context) CheckResult {
	if r.Ready() {
		return CheckResult{Status: StatusHealthy}
	}
	return CheckResult{Status: StatusUnhealthy, Message: "amqp listener not accepting"}
}
