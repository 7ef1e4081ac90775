package codec

// AMQP 1.0 类型编码（constructor）常量
const (
	typeCodeDescribed byte = 0x00
	typeCodeNull      byte = 0x40

	// 布尔
	typeCodeBool      byte = 0x56
	typeCodeBoolTrue  byte = 0x41
	typeCodeBoolFalse byte = 0x42

	// 无符号整数
	typeCodeUbyte      byte = 0x50
	typeCodeUshort     byte = 0x60
	typeCodeUint       byte = 0x70
	typeCodeSmallUint  byte = 0x52
	typeCodeUint0      byte = 0x43
	typeCodeUlong      byte = 0x80
	typeCodeSmallUlong byte = 0x53
	typeCodeUlong0     byte = 0x44

	// 有符号整数
	typeCodeByte      byte = 0x51
	typeCodeShort     byte = 0x61
	typeCodeInt       byte = 0x71
	typeCodeSmallint  byte = 0x54
	typeCodeLong      byte = 0x81
	typeCodeSmalllong byte = 0x55

	// 浮点与十进制
	typeCodeFloat      byte = 0x72
	typeCodeDouble     byte = 0x82
	typeCodeDecimal32  byte = 0x74
	typeCodeDecimal64  byte = 0x84
	typeCodeDecimal128 byte = 0x94

	// 其他定长
	typeCodeChar      byte = 0x73
	typeCodeTimestamp byte = 0x83
	typeCodeUUID      byte = 0x98

	// 变长
	typeCodeVbin8  byte = 0xa0
	typeCodeVbin32 byte = 0xb0
	typeCodeStr8   byte = 0xa1
	typeCodeStr32  byte = 0xb1
	typeCodeSym8   byte = 0xa3
	typeCodeSym32  byte = 0xb3

	// 复合
	typeCodeList0   byte = 0x45
	typeCodeList8   byte = 0xc0
	typeCodeList32  byte = 0xd0
	typeCodeMap8    byte = 0xc1
	typeCodeMap32   byte = 0xd1
	typeCodeArray8  byte = 0xe0
	typeCodeArray32 byte = 0xf0
)

// maxDepth 复合类型最大嵌套层数，防止恶意输入构造深度嵌套
const maxDepth = 64

// Symbol AMQP symbol（ASCII 符号）
type Symbol string

// Char AMQP char（UTF-32BE 单字符）
type Char rune

// Decimal32 IEEE 754 decimal32 原始字节（不做数值解释）
type Decimal32 [4]byte

// Decimal64 IEEE 754 decimal64 原始字节
type Decimal64 [8]byte

// Decimal128 IEEE 754 decimal128 原始字节
type Decimal128 [16]byte

// List 有序值列表
type List []any

// MapEntry Map 中的一个键值对
type MapEntry struct {
	Key   any
	Value any
}

// Map 保序的 AMQP map。
// 用切片而非 Go map：编码结果确定，且 []byte 等不可比较类型也能作为键。
type Map []MapEntry

// Get 按键查找（线性扫描），键需为可比较类型
func (m Map) Get(key any) (any, bool) {
	for _, e := range m {
		if isComparable(e.Key) && isComparable(key) && e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Array 同构数组：所有元素共享一个 constructor
type Array []any

// Described 带描述符的值（descriptor + value）
type Described struct {
	Descriptor any
	Value      any
}

func isComparable(v any) bool {
	switch v.(type) {
	case nil, bool, uint8, uint16, uint32, uint64, int8, int16, int32, int64,
		float32, float64, string, Symbol, Char:
		return true
	}
	return false
}
