package codec

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Decode 从 b 开头解码一个值，返回值与消耗的字节数。
// 所有长度字段在访问前都与剩余字节数比较；复合类型只在其声明的 size 范围内解码。
func Decode(b []byte) (any, int, error) {
	d := decoder{buf: b}
	v, err := d.readValue()
	if err != nil {
		return nil, 0, err
	}
	return v, d.off, nil
}

// Unmarshal 要求 b 恰好是一个完整的值
func Unmarshal(b []byte) (any, error) {
	v, n, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, errors.Wrapf(ErrTrailingBytes, "%d of %d bytes unread", len(b)-n, len(b))
	}
	return v, nil
}

type decoder struct {
	buf   []byte
	off   int
	depth int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) next(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, d.off, d.remaining())
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p, nil
}

func (d *decoder) readByte() (byte, error) {
	p, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (d *decoder) readValue() (any, error) {
	code, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if code == typeCodeDescribed {
		return d.readDescribed()
	}
	return d.readBody(code)
}

func (d *decoder) readDescribed() (any, error) {
	if d.depth >= maxDepth {
		return nil, ErrTooDeep
	}
	d.depth++
	defer func() { d.depth-- }()

	desc, err := d.readValue()
	if err != nil {
		return nil, errors.Wrap(err, "descriptor")
	}
	val, err := d.readValue()
	if err != nil {
		return nil, errors.Wrap(err, "described value")
	}
	return Described{Descriptor: desc, Value: val}, nil
}

// readBody 在 constructor 已读出的前提下解码值本体（数组元素也走这里）
func (d *decoder) readBody(code byte) (any, error) {
	switch code {
	case typeCodeNull:
		return nil, nil
	case typeCodeBoolTrue:
		return true, nil
	case typeCodeBoolFalse:
		return false, nil
	case typeCodeBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0x00:
			return false, nil
		case 0x01:
			return true, nil
		}
		return nil, errors.Errorf("codec: invalid boolean octet 0x%02x", b)

	case typeCodeUbyte:
		return d.readByte()
	case typeCodeUshort:
		p, err := d.next(2)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint16(p), nil
	case typeCodeUint:
		p, err := d.next(4)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint32(p), nil
	case typeCodeSmallUint:
		b, err := d.readByte()
		return uint32(b), err
	case typeCodeUint0:
		return uint32(0), nil
	case typeCodeUlong:
		p, err := d.next(8)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint64(p), nil
	case typeCodeSmallUlong:
		b, err := d.readByte()
		return uint64(b), err
	case typeCodeUlong0:
		return uint64(0), nil

	case typeCodeByte:
		b, err := d.readByte()
		return int8(b), err
	case typeCodeShort:
		p, err := d.next(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.BigEndian.Uint16(p)), nil
	case typeCodeInt:
		p, err := d.next(4)
		if err != nil {
			return nil, err
		}
		return int32(binary.BigEndian.Uint32(p)), nil
	case typeCodeSmallint:
		b, err := d.readByte()
		return int32(int8(b)), err
	case typeCodeLong:
		p, err := d.next(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(p)), nil
	case typeCodeSmalllong:
		b, err := d.readByte()
		return int64(int8(b)), err

	case typeCodeFloat:
		p, err := d.next(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
	case typeCodeDouble:
		p, err := d.next(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
	case typeCodeDecimal32:
		var v Decimal32
		p, err := d.next(len(v))
		if err != nil {
			return nil, err
		}
		copy(v[:], p)
		return v, nil
	case typeCodeDecimal64:
		var v Decimal64
		p, err := d.next(len(v))
		if err != nil {
			return nil, err
		}
		copy(v[:], p)
		return v, nil
	case typeCodeDecimal128:
		var v Decimal128
		p, err := d.next(len(v))
		if err != nil {
			return nil, err
		}
		copy(v[:], p)
		return v, nil
	case typeCodeChar:
		p, err := d.next(4)
		if err != nil {
			return nil, err
		}
		return Char(binary.BigEndian.Uint32(p)), nil
	case typeCodeTimestamp:
		p, err := d.next(8)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(int64(binary.BigEndian.Uint64(p))).UTC(), nil
	case typeCodeUUID:
		var v uuid.UUID
		p, err := d.next(len(v))
		if err != nil {
			return nil, err
		}
		copy(v[:], p)
		return v, nil

	case typeCodeVbin8, typeCodeVbin32:
		p, err := d.readSized(code == typeCodeVbin32)
		if err != nil {
			return nil, err
		}
		// 不与输入缓冲区共享底层数组
		out := make([]byte, len(p))
		copy(out, p)
		return out, nil
	case typeCodeStr8, typeCodeStr32:
		p, err := d.readSized(code == typeCodeStr32)
		if err != nil {
			return nil, err
		}
		return string(p), nil
	case typeCodeSym8, typeCodeSym32:
		p, err := d.readSized(code == typeCodeSym32)
		if err != nil {
			return nil, err
		}
		return Symbol(p), nil

	case typeCodeList0:
		return List{}, nil
	case typeCodeList8, typeCodeList32:
		return d.readList(code == typeCodeList32)
	case typeCodeMap8, typeCodeMap32:
		return d.readMap(code == typeCodeMap32)
	case typeCodeArray8, typeCodeArray32:
		return d.readArray(code == typeCodeArray32)
	}
	return nil, errors.Wrapf(ErrInvalidType, "type code 0x%02x at offset %d", code, d.off-1)
}

func (d *decoder) readSized(wide bool) ([]byte, error) {
	var n int
	if wide {
		p, err := d.next(4)
		if err != nil {
			return nil, err
		}
		n = int(binary.BigEndian.Uint32(p))
	} else {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	}
	return d.next(n)
}

// compound 读出复合类型的 size 与 count，返回只覆盖该复合值的子解码器
func (d *decoder) compound(wide bool) (*decoder, int, error) {
	if d.depth >= maxDepth {
		return nil, 0, ErrTooDeep
	}
	region, err := d.readSized(wide)
	if err != nil {
		return nil, 0, err
	}
	sub := &decoder{buf: region, depth: d.depth + 1}
	var count int
	if wide {
		p, err := sub.next(4)
		if err != nil {
			return nil, 0, errors.Wrap(ErrInvalidSize, "missing count")
		}
		count = int(binary.BigEndian.Uint32(p))
	} else {
		b, err := sub.readByte()
		if err != nil {
			return nil, 0, errors.Wrap(ErrInvalidSize, "missing count")
		}
		count = int(b)
	}
	// 每个元素至少占 1 字节（数组元素可零宽，但同样受 size 约束）
	if count < 0 || count > len(region) {
		return nil, 0, errors.Wrapf(ErrInvalidSize, "count %d exceeds size %d", count, len(region))
	}
	return sub, count, nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return errors.Wrapf(ErrInvalidSize, "%d bytes left inside compound", d.remaining())
	}
	return nil
}

func (d *decoder) readList(wide bool) (any, error) {
	sub, count, err := d.compound(wide)
	if err != nil {
		return nil, err
	}
	l := make(List, 0, count)
	for i := 0; i < count; i++ {
		v, err := sub.readValue()
		if err != nil {
			return nil, errors.Wrapf(err, "list[%d]", i)
		}
		l = append(l, v)
	}
	return l, sub.finish()
}

func (d *decoder) readMap(wide bool) (any, error) {
	sub, count, err := d.compound(wide)
	if err != nil {
		return nil, err
	}
	if count%2 != 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "odd map element count %d", count)
	}
	m := make(Map, 0, count/2)
	for i := 0; i < count/2; i++ {
		k, err := sub.readValue()
		if err != nil {
			return nil, errors.Wrapf(err, "map key %d", i)
		}
		v, err := sub.readValue()
		if err != nil {
			return nil, errors.Wrapf(err, "map value %d", i)
		}
		m = append(m, MapEntry{Key: k, Value: v})
	}
	return m, sub.finish()
}

func (d *decoder) readArray(wide bool) (any, error) {
	sub, count, err := d.compound(wide)
	if err != nil {
		return nil, err
	}
	code, err := sub.readByte()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSize, "missing array constructor")
	}
	var descriptor any
	described := code == typeCodeDescribed
	if described {
		if descriptor, err = sub.readValue(); err != nil {
			return nil, errors.Wrap(err, "array descriptor")
		}
		if code, err = sub.readByte(); err != nil {
			return nil, errors.Wrap(ErrInvalidSize, "missing array element constructor")
		}
	}
	a := make(Array, 0, count)
	for i := 0; i < count; i++ {
		v, err := sub.readBody(code)
		if err != nil {
			return nil, errors.Wrapf(err, "array[%d]", i)
		}
		if described {
			v = Described{Descriptor: descriptor, Value: v}
		}
		a = append(a, v)
	}
	return a, sub.finish()
}
