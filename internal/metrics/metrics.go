package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 网关指标
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	TCPRejected      *prometheus.CounterVec // labels: reason=rate|limit
	TCPBytesReceived prometheus.Counter
	TCPBytesSent     prometheus.Counter
	ConnActive       prometheus.Gauge
	FramesIn         *prometheus.CounterVec // labels: performative
	FramesOut        *prometheus.CounterVec // labels: performative
	FrameBytesIn     prometheus.Counter
	FrameBytesOut    prometheus.Counter
	FrameErrors      *prometheus.CounterVec // labels: kind=malformed|unknown_opcode|action|header
}

// NewAppMetrics 注册并返回网关指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcp_reject_total",
			Help: "TCP connections rejected before serving.",
		}, []string{"reason"}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		TCPBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_sent_total",
			Help: "Total bytes queued for sending over TCP.",
		}),
		ConnActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amqp_connections_active",
			Help: "Current number of AMQP connections.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amqp_frames_in_total",
			Help: "Dispatched inbound frames by performative.",
		}, []string{"performative"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amqp_frames_out_total",
			Help: "Encoded outbound frames by performative.",
		}, []string{"performative"}),
		FrameBytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amqp_frame_bytes_in_total",
			Help: "Bytes of dispatched inbound frames.",
		}),
		FrameBytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amqp_frame_bytes_out_total",
			Help: "Bytes of encoded outbound frames.",
		}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amqp_frame_errors_total",
			Help: "Frame level errors by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.TCPAccepted, m.TCPRejected, m.TCPBytesReceived, m.TCPBytesSent, m.ConnActive,
		m.FramesIn, m.FramesOut, m.FrameBytesIn, m.FrameBytesOut, m.FrameErrors,
	)
	return m
}

// ObserveFrameIn 记录一个入站帧（签名与分发器的指标回调一致）
func (m *AppMetrics) ObserveFrameIn(name string, size int) {
	m.FramesIn.WithLabelValues(name).Inc()
	m.FrameBytesIn.Add(float64(size))
}

// ObserveFrameOut 记录一个出站帧
func (m *AppMetrics) ObserveFrameOut(name string, size int) {
	m.FramesOut.WithLabelValues(name).Inc()
	m.FrameBytesOut.Add(float64(size))
}
