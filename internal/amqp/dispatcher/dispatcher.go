package dispatcher

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/amqp-engine/internal/amqp/codec"
	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
)

const (
	// headerSize 帧头固定 8 字节：size(4) doff(1) type(1) channel(2)
	headerSize = 8
	// minDoff 最小数据偏移（单位 4 字节）
	minDoff = 2

	// DefaultOutputCapacity 默认输出缓冲容量
	DefaultOutputCapacity = 4 * 1024
	// DefaultScratchSize 暂存区初始大小
	DefaultScratchSize = 1024
	// MaxFields 出站参数列表最多字段数
	MaxFields = 256
)

type options struct {
	maxFrameSize   uint32
	outputCapacity int
	trace          bool
	logger         *zap.Logger
}

// Option 分发器可选参数
type Option func(*options)

// WithLogger 设置日志（跟踪日志使用）
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithTrace 为 true 时每个入站/出站帧打一条 debug 日志
func WithTrace(on bool) Option { return func(o *options) { o.trace = on } }

// WithMaxFrameSize 入站与出站帧的最大长度，0 表示仅受 32 位 size 限制
func WithMaxFrameSize(n uint32) Option { return func(o *options) { o.maxFrameSize = n } }

// WithOutputCapacity 输出缓冲容量，<=0 时使用 DefaultOutputCapacity
func WithOutputCapacity(n int) Option { return func(o *options) { o.outputCapacity = n } }

// Dispatcher 单连接的帧分发器：解帧→按 opcode 调用 action，并负责组帧与输出缓冲。
// 非并发安全，由连接的读循环独占使用。
type Dispatcher[C any] struct {
	actions   ActionTable[C]
	frameType uint8
	ctx       C

	logger       *zap.Logger
	trace        bool
	maxFrameSize uint32
	// 对端通告的最大帧长，只约束出站帧
	remoteMaxFrameSize uint32

	// 当前入站帧，仅在 action 执行期间有效
	channel     uint16
	code        uint8
	args        codec.List
	payload     []byte
	dispatching bool

	// 正在构造的出站帧
	outArgs    []any
	outPayload []byte
	scratch    []byte

	output   []byte
	capacity int

	onFrameIn   func(name string, size int)
	onFrameOut  func(name string, size int)
	onHeartbeat func(channel uint16)

	closed bool
}

// New 创建分发器，frameType 为期望的帧类型（0=AMQP，1=SASL），ctx 为调用方上下文
func New[C any](frameType uint8, ctx C, opts ...Option) *Dispatcher[C] {
	o := options{outputCapacity: DefaultOutputCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.outputCapacity <= 0 {
		o.outputCapacity = DefaultOutputCapacity
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Dispatcher[C]{
		frameType:    frameType,
		ctx:          ctx,
		logger:       o.logger,
		trace:        o.trace,
		maxFrameSize: o.maxFrameSize,
		scratch:      make([]byte, 0, DefaultScratchSize),
		capacity:     o.outputCapacity,
	}
}

// Register 注册 action
func (d *Dispatcher[C]) Register(code uint8, name string, fn Action[C]) {
	d.actions.Register(code, name, fn)
}

// RegisterAll 为本帧类型下全部已知 performative 注册同一个 action
func (d *Dispatcher[C]) RegisterAll(fn Action[C]) {
	for _, c := range performative.ForFrameType(d.frameType) {
		d.actions.Register(uint8(c), c.String(), fn)
	}
}

// Actions 路由表
func (d *Dispatcher[C]) Actions() *ActionTable[C] { return &d.actions }

// SetMetricsCallbacks 设置帧计数回调（注入指标）
func (d *Dispatcher[C]) SetMetricsCallbacks(onFrameIn, onFrameOut func(name string, size int)) {
	d.onFrameIn = onFrameIn
	d.onFrameOut = onFrameOut
}

// SetHeartbeatHandler 收到空帧（心跳）时回调
func (d *Dispatcher[C]) SetHeartbeatHandler(fn func(channel uint16)) {
	d.onHeartbeat = fn
}

// SetTrace 开关帧跟踪日志
func (d *Dispatcher[C]) SetTrace(on bool) { d.trace = on }

// SetMaxFrameSize 更新本端最大帧长，同时约束入站与出站
func (d *Dispatcher[C]) SetMaxFrameSize(n uint32) { d.maxFrameSize = n }

// SetRemoteMaxFrameSize 记录对端 open 中的 max-frame-size，0 表示未通告。
// 出站帧取本端与对端上限中较小者，入站不受影响。
func (d *Dispatcher[C]) SetRemoteMaxFrameSize(n uint32) { d.remoteMaxFrameSize = n }

// RemoteMaxFrameSize 对端通告的最大帧长
func (d *Dispatcher[C]) RemoteMaxFrameSize() uint32 { return d.remoteMaxFrameSize }

func (d *Dispatcher[C]) outboundLimit() uint32 {
	limit := d.maxFrameSize
	if r := d.remoteMaxFrameSize; r > 0 && (limit == 0 || r < limit) {
		limit = r
	}
	return limit
}

// MaxFrameSize 当前最大帧长
func (d *Dispatcher[C]) MaxFrameSize() uint32 { return d.maxFrameSize }

// FrameType 期望的帧类型
func (d *Dispatcher[C]) FrameType() uint8 { return d.frameType }

// Context 调用方上下文
func (d *Dispatcher[C]) Context() C { return d.ctx }

// Channel 当前入站帧的通道号
func (d *Dispatcher[C]) Channel() uint16 { return d.channel }

// Code 当前入站帧的 opcode
func (d *Dispatcher[C]) Code() uint8 { return d.code }

// Args 当前入站帧的参数列表
func (d *Dispatcher[C]) Args() codec.List { return d.args }

// Arg 返回第 i 个参数，越界或缺省返回 nil
func (d *Dispatcher[C]) Arg(i int) any {
	if i < 0 || i >= len(d.args) {
		return nil
	}
	return d.args[i]
}

// Payload 当前入站帧的载荷。
// 借用自 Feed 的输入缓冲，只在 action 返回前有效，需要保留时自行拷贝。
func (d *Dispatcher[C]) Payload() []byte { return d.payload }

// Closed 是否已关闭
func (d *Dispatcher[C]) Closed() bool { return d.closed }

// Close 释放全部缓冲，之后的 Feed/Finalize 返回 ErrClosed。可重复调用。
func (d *Dispatcher[C]) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.actions.reset()
	d.args = nil
	d.payload = nil
	d.outArgs = nil
	d.outPayload = nil
	d.scratch = nil
	d.output = nil
	d.onFrameIn = nil
	d.onFrameOut = nil
	d.onHeartbeat = nil
}

func (d *Dispatcher[C]) name(code uint8) string {
	if n := d.actions.Name(code); n != "" {
		return n
	}
	return performative.Code(code).String()
}
