package dispatcher

// Action 帧处理函数。调用期间可通过 d 读取当前帧，也可构造应答帧。
type Action[C any] func(d *Dispatcher[C]) error

type action[C any] struct {
	fn   Action[C]
	name string
}

// ActionTable 路由表（opcode -> action），定长 256 项。
// 在建立连接时一次性注册，之后只读；由所属 Dispatcher 单线程使用，不加锁。
type ActionTable[C any] struct {
	entries [256]action[C]
}

// Register 注册 action，重复注册直接覆盖
func (t *ActionTable[C]) Register(code uint8, name string, fn Action[C]) {
	t.entries[code] = action[C]{fn: fn, name: name}
}

// Lookup 查找 action
func (t *ActionTable[C]) Lookup(code uint8) (Action[C], string, bool) {
	e := t.entries[code]
	if e.fn == nil {
		return nil, "", false
	}
	return e.fn, e.name, true
}

// Name 返回注册名（仅用于诊断），未注册返回空串
func (t *ActionTable[C]) Name(code uint8) string { return t.entries[code].name }

func (t *ActionTable[C]) reset() { t.entries = [256]action[C]{} }
