package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Marshal 将单个值编码为 AMQP 字节
func Marshal(v any) ([]byte, error) {
	return Append(nil, v)
}

// Append 将 v 的编码追加到 dst 之后。
// 整数、字符串等总是选用最短的合法编码；int/uint 分别按 long/ulong 编码。
func Append(dst []byte, v any) ([]byte, error) {
	return appendValue(dst, v, 0)
}

func appendValue(dst []byte, v any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return dst, ErrTooDeep
	}
	switch t := v.(type) {
	case nil:
		return append(dst, typeCodeNull), nil
	case bool:
		if t {
			return append(dst, typeCodeBoolTrue), nil
		}
		return append(dst, typeCodeBoolFalse), nil
	case uint8:
		return append(dst, typeCodeUbyte, t), nil
	case uint16:
		return binary.BigEndian.AppendUint16(append(dst, typeCodeUshort), t), nil
	case uint32:
		switch {
		case t == 0:
			return append(dst, typeCodeUint0), nil
		case t <= math.MaxUint8:
			return append(dst, typeCodeSmallUint, byte(t)), nil
		}
		return binary.BigEndian.AppendUint32(append(dst, typeCodeUint), t), nil
	case uint64:
		switch {
		case t == 0:
			return append(dst, typeCodeUlong0), nil
		case t <= math.MaxUint8:
			return append(dst, typeCodeSmallUlong, byte(t)), nil
		}
		return binary.BigEndian.AppendUint64(append(dst, typeCodeUlong), t), nil
	case uint:
		return appendValue(dst, uint64(t), depth)
	case int8:
		return append(dst, typeCodeByte, byte(t)), nil
	case int16:
		return binary.BigEndian.AppendUint16(append(dst, typeCodeShort), uint16(t)), nil
	case int32:
		if t >= math.MinInt8 && t <= math.MaxInt8 {
			return append(dst, typeCodeSmallint, byte(int8(t))), nil
		}
		return binary.BigEndian.AppendUint32(append(dst, typeCodeInt), uint32(t)), nil
	case int64:
		if t >= math.MinInt8 && t <= math.MaxInt8 {
			return append(dst, typeCodeSmalllong, byte(int8(t))), nil
		}
		return binary.BigEndian.AppendUint64(append(dst, typeCodeLong), uint64(t)), nil
	case int:
		return appendValue(dst, int64(t), depth)
	case float32:
		return binary.BigEndian.AppendUint32(append(dst, typeCodeFloat), math.Float32bits(t)), nil
	case float64:
		return binary.BigEndian.AppendUint64(append(dst, typeCodeDouble), math.Float64bits(t)), nil
	case Decimal32:
		return append(append(dst, typeCodeDecimal32), t[:]...), nil
	case Decimal64:
		return append(append(dst, typeCodeDecimal64), t[:]...), nil
	case Decimal128:
		return append(append(dst, typeCodeDecimal128), t[:]...), nil
	case Char:
		return binary.BigEndian.AppendUint32(append(dst, typeCodeChar), uint32(t)), nil
	case time.Time:
		return binary.BigEndian.AppendUint64(append(dst, typeCodeTimestamp), uint64(t.UnixMilli())), nil
	case uuid.UUID:
		return append(append(dst, typeCodeUUID), t[:]...), nil
	case []byte:
		return appendVariable(dst, typeCodeVbin8, typeCodeVbin32, t)
	case string:
		return appendVariable(dst, typeCodeStr8, typeCodeStr32, []byte(t))
	case Symbol:
		return appendVariable(dst, typeCodeSym8, typeCodeSym32, []byte(t))
	case List:
		return appendList(dst, t, depth)
	case []any:
		return appendList(dst, List(t), depth)
	case Map:
		return appendMap(dst, t, depth)
	case Array:
		return appendArray(dst, t, depth)
	case Described:
		return appendDescribed(dst, t, depth)
	case *Described:
		if t == nil {
			return append(dst, typeCodeNull), nil
		}
		return appendDescribed(dst, *t, depth)
	}
	return dst, errors.Wrapf(ErrUnsupportedType, "%T", v)
}

func appendDescribed(dst []byte, d Described, depth int) ([]byte, error) {
	dst = append(dst, typeCodeDescribed)
	dst, err := appendValue(dst, d.Descriptor, depth+1)
	if err != nil {
		return dst, errors.Wrap(err, "descriptor")
	}
	return appendValue(dst, d.Value, depth+1)
}

func appendVariable(dst []byte, code8, code32 byte, b []byte) ([]byte, error) {
	switch {
	case len(b) <= math.MaxUint8:
		dst = append(dst, code8, byte(len(b)))
	case uint64(len(b)) <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, code32), uint32(len(b)))
	default:
		return dst, errors.Wrapf(ErrTooLarge, "%d bytes", len(b))
	}
	return append(dst, b...), nil
}

// appendCompound 写入 list/map 头部（size 覆盖 count 字段与全部元素）
func appendCompound(dst []byte, code8, code32 byte, count int, body []byte) ([]byte, error) {
	switch {
	case count <= math.MaxUint8 && len(body)+1 <= math.MaxUint8:
		dst = append(dst, code8, byte(len(body)+1), byte(count))
	case uint64(len(body))+4 <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, code32), uint32(len(body)+4))
		dst = binary.BigEndian.AppendUint32(dst, uint32(count))
	default:
		return dst, errors.Wrapf(ErrTooLarge, "%d elements", count)
	}
	return append(dst, body...), nil
}

func appendList(dst []byte, l List, depth int) ([]byte, error) {
	if len(l) == 0 {
		return append(dst, typeCodeList0), nil
	}
	var body []byte
	var err error
	for i, e := range l {
		if body, err = appendValue(body, e, depth+1); err != nil {
			return dst, errors.Wrapf(err, "list[%d]", i)
		}
	}
	return appendCompound(dst, typeCodeList8, typeCodeList32, len(l), body)
}

func appendMap(dst []byte, m Map, depth int) ([]byte, error) {
	var body []byte
	var err error
	for i, e := range m {
		if body, err = appendValue(body, e.Key, depth+1); err != nil {
			return dst, errors.Wrapf(err, "map key %d", i)
		}
		if body, err = appendValue(body, e.Value, depth+1); err != nil {
			return dst, errors.Wrapf(err, "map value %d", i)
		}
	}
	return appendCompound(dst, typeCodeMap8, typeCodeMap32, len(m)*2, body)
}

func appendArray(dst []byte, a Array, depth int) ([]byte, error) {
	body, err := arrayBody(a, depth)
	if err != nil {
		return dst, err
	}
	// array 的 size 同样覆盖 count、constructor 与元素
	switch {
	case len(a) <= math.MaxUint8 && len(body)+1 <= math.MaxUint8:
		dst = append(dst, typeCodeArray8, byte(len(body)+1), byte(len(a)))
	case uint64(len(body))+4 <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, typeCodeArray32), uint32(len(body)+4))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(a)))
	default:
		return dst, errors.Wrapf(ErrTooLarge, "%d elements", len(a))
	}
	return append(dst, body...), nil
}

// arrayBody 编码 constructor 与全部元素（不含 size/count）。
// 元素均为 Described 且描述符编码一致时写入 0x00 + descriptor + 内层 constructor。
func arrayBody(a Array, depth int) ([]byte, error) {
	var body []byte
	elems := a
	if len(a) > 0 {
		if first, ok := a[0].(Described); ok {
			desc, err := appendValue(nil, first.Descriptor, depth+1)
			if err != nil {
				return nil, errors.Wrap(err, "array descriptor")
			}
			elems = make(Array, len(a))
			for i, e := range a {
				d, ok := e.(Described)
				if !ok {
					return nil, mismatchErr(typeCodeDescribed, e)
				}
				if i > 0 {
					other, err := appendValue(nil, d.Descriptor, depth+1)
					if err != nil {
						return nil, errors.Wrapf(err, "array[%d] descriptor", i)
					}
					if !bytes.Equal(desc, other) {
						return nil, errors.Wrapf(ErrMixedArray, "array[%d] descriptor %v, want %v", i, d.Descriptor, first.Descriptor)
					}
				}
				elems[i] = d.Value
			}
			body = append(append(body, typeCodeDescribed), desc...)
		}
	}

	code, err := arrayConstructor(elems)
	if err != nil {
		return nil, err
	}
	body = append(body, code)
	for i, e := range elems {
		if body, err = appendElement(body, code, e, depth+1); err != nil {
			return nil, errors.Wrapf(err, "array[%d]", i)
		}
	}
	return body, nil
}

// arrayConstructor 按首元素类型选定整个数组的 constructor。
// 数组元素不能使用零宽或 small 编码，因此选用各类型的定长/宽编码。
func arrayConstructor(a Array) (byte, error) {
	if len(a) == 0 {
		return typeCodeNull, nil
	}
	short := true
	for _, e := range a {
		var n int
		switch t := e.(type) {
		case []byte:
			n = len(t)
		case string:
			n = len(t)
		case Symbol:
			n = len(t)
		}
		if n > math.MaxUint8 {
			short = false
			break
		}
	}
	var code byte
	switch a[0].(type) {
	case bool:
		code = typeCodeBool
	case uint8:
		code = typeCodeUbyte
	case uint16:
		code = typeCodeUshort
	case uint32:
		code = typeCodeUint
	case uint64, uint:
		code = typeCodeUlong
	case int8:
		code = typeCodeByte
	case int16:
		code = typeCodeShort
	case int32:
		code = typeCodeInt
	case int64, int:
		code = typeCodeLong
	case float32:
		code = typeCodeFloat
	case float64:
		code = typeCodeDouble
	case Char:
		code = typeCodeChar
	case time.Time:
		code = typeCodeTimestamp
	case uuid.UUID:
		code = typeCodeUUID
	case []byte:
		code = pick(short, typeCodeVbin8, typeCodeVbin32)
	case string:
		code = pick(short, typeCodeStr8, typeCodeStr32)
	case Symbol:
		code = pick(short, typeCodeSym8, typeCodeSym32)
	case List, []any:
		code = typeCodeList32
	case Map:
		code = typeCodeMap32
	case Array:
		code = typeCodeArray32
	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "array of %T", a[0])
	}
	return code, nil
}

func pick(short bool, code8, code32 byte) byte {
	if short {
		return code8
	}
	return code32
}

// appendElement 按固定 constructor 写入数组元素（不含 constructor 字节）
func appendElement(dst []byte, code byte, v any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return dst, ErrTooDeep
	}
	switch code {
	case typeCodeBool:
		b, ok := v.(bool)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case typeCodeUbyte:
		t, ok := v.(uint8)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return append(dst, t), nil
	case typeCodeUshort:
		t, ok := v.(uint16)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint16(dst, t), nil
	case typeCodeUint:
		t, ok := v.(uint32)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint32(dst, t), nil
	case typeCodeUlong:
		switch t := v.(type) {
		case uint64:
			return binary.BigEndian.AppendUint64(dst, t), nil
		case uint:
			return binary.BigEndian.AppendUint64(dst, uint64(t)), nil
		}
		return dst, mismatchErr(code, v)
	case typeCodeByte:
		t, ok := v.(int8)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return append(dst, byte(t)), nil
	case typeCodeShort:
		t, ok := v.(int16)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint16(dst, uint16(t)), nil
	case typeCodeInt:
		t, ok := v.(int32)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint32(dst, uint32(t)), nil
	case typeCodeLong:
		switch t := v.(type) {
		case int64:
			return binary.BigEndian.AppendUint64(dst, uint64(t)), nil
		case int:
			return binary.BigEndian.AppendUint64(dst, uint64(t)), nil
		}
		return dst, mismatchErr(code, v)
	case typeCodeFloat:
		t, ok := v.(float32)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(t)), nil
	case typeCodeDouble:
		t, ok := v.(float64)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(t)), nil
	case typeCodeChar:
		t, ok := v.(Char)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint32(dst, uint32(t)), nil
	case typeCodeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return binary.BigEndian.AppendUint64(dst, uint64(t.UnixMilli())), nil
	case typeCodeUUID:
		t, ok := v.(uuid.UUID)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return append(dst, t[:]...), nil
	case typeCodeVbin8, typeCodeVbin32:
		t, ok := v.([]byte)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return appendSized(dst, code == typeCodeVbin32, t), nil
	case typeCodeStr8, typeCodeStr32:
		t, ok := v.(string)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return appendSized(dst, code == typeCodeStr32, []byte(t)), nil
	case typeCodeSym8, typeCodeSym32:
		t, ok := v.(Symbol)
		if !ok {
			return dst, mismatchErr(code, v)
		}
		return appendSized(dst, code == typeCodeSym32, []byte(t)), nil
	case typeCodeList32, typeCodeMap32, typeCodeArray32:
		var full []byte
		var err error
		switch t := v.(type) {
		case List:
			if code != typeCodeList32 {
				return dst, mismatchErr(code, v)
			}
			full, err = appendWideList(nil, t, depth)
		case []any:
			if code != typeCodeList32 {
				return dst, mismatchErr(code, v)
			}
			full, err = appendWideList(nil, List(t), depth)
		case Map:
			if code != typeCodeMap32 {
				return dst, mismatchErr(code, v)
			}
			full, err = appendWideMap(nil, t, depth)
		case Array:
			if code != typeCodeArray32 {
				return dst, mismatchErr(code, v)
			}
			full, err = appendArray32(nil, t, depth)
		default:
			return dst, mismatchErr(code, v)
		}
		if err != nil {
			return dst, err
		}
		// 去掉 constructor 字节
		return append(dst, full[1:]...), nil
	}
	return dst, errors.Wrapf(ErrUnsupportedType, "array constructor 0x%02x", code)
}

func mismatchErr(code byte, v any) error {
	return errors.Wrapf(ErrMixedArray, "constructor 0x%02x, element %T", code, v)
}

func appendSized(dst []byte, wide bool, b []byte) []byte {
	if wide {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	} else {
		dst = append(dst, byte(len(b)))
	}
	return append(dst, b...)
}

func appendWideList(dst []byte, l List, depth int) ([]byte, error) {
	var body []byte
	var err error
	for i, e := range l {
		if body, err = appendValue(body, e, depth+1); err != nil {
			return dst, errors.Wrapf(err, "list[%d]", i)
		}
	}
	dst = binary.BigEndian.AppendUint32(append(dst, typeCodeList32), uint32(len(body)+4))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(l)))
	return append(dst, body...), nil
}

func appendWideMap(dst []byte, m Map, depth int) ([]byte, error) {
	var body []byte
	var err error
	for i, e := range m {
		if body, err = appendValue(body, e.Key, depth+1); err != nil {
			return dst, errors.Wrapf(err, "map key %d", i)
		}
		if body, err = appendValue(body, e.Value, depth+1); err != nil {
			return dst, errors.Wrapf(err, "map value %d", i)
		}
	}
	dst = binary.BigEndian.AppendUint32(append(dst, typeCodeMap32), uint32(len(body)+4))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(m)*2))
	return append(dst, body...), nil
}

func appendArray32(dst []byte, a Array, depth int) ([]byte, error) {
	body, err := arrayBody(a, depth)
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint32(append(dst, typeCodeArray32), uint32(len(body)+4))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(a)))
	return append(dst, body...), nil
}
