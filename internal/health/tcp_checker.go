package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/amqp-engine/internal/tcpserver"
)

// ConnStats 连接统计来源（*tcpserver.Server）
type ConnStats interface {
	ActiveConnections() int
	AdmissionStats() tcpserver.AdmissionStats
}

// TCPChecker 按连接占用率判断健康
type TCPChecker struct {
	server ConnStats
}

func NewTCPChecker(server ConnStats) *TCPChecker {
	return &TCPChecker{server: server}
}

func (c *TCPChecker) Name() string { return "tcp" }

func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	active := c.server.ActiveConnections()
	st := c.server.AdmissionStats()
	maxConns := st.MaxConnections

	if maxConns == 0 {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no limiting enabled",
			Details: map[string]any{"active_connections": active},
			Latency: time.Since(start),
		}
	}

	utilization := float64(active) / float64(maxConns)
	status, message := StatusHealthy, "ok"
	switch {
	case utilization > 0.95:
		status, message = StatusUnhealthy, "connection limit near exhausted"
	case utilization > 0.8:
		status, message = StatusDegraded, "high connection usage"
	}

	details := map[string]any{
		"active_connections": active,
		"max_connections":    maxConns,
		"utilization":        fmt.Sprintf("%.1f%%", utilization*100),
	}
	for reason, n := range st.Rejected {
		details["rejected_"+reason] = n
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
