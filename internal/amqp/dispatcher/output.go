package dispatcher

// Drain 将待发送字节按 FIFO 顺序拷入 dst，返回拷贝数；剩余字节前移保留
func (d *Dispatcher[C]) Drain(dst []byte) int {
	if d.closed {
		return 0
	}
	n := copy(dst, d.output)
	rest := copy(d.output, d.output[n:])
	d.output = d.output[:rest]
	return n
}

// Pending 待发送字节数
func (d *Dispatcher[C]) Pending() int { return len(d.output) }

// Capacity 输出缓冲容量
func (d *Dispatcher[C]) Capacity() int { return d.capacity }

// SetCapacity 调整输出缓冲容量，不得小于当前待发送字节数
func (d *Dispatcher[C]) SetCapacity(n int) error {
	if n < len(d.output) {
		return ErrCapacityBelowPending
	}
	d.capacity = n
	return nil
}
