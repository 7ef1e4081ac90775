package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrShortBuffer},
		{"unknown code", []byte{0xff}, ErrInvalidType},
		{"truncated uint", []byte{0x70, 0x00, 0x01}, ErrShortBuffer},
		{"truncated ulong", []byte{0x80, 0x00}, ErrShortBuffer},
		{"str8 length past end", []byte{0xa1, 0x05, 'a', 'b'}, ErrShortBuffer},
		{"str32 huge length", []byte{0xb1, 0xff, 0xff, 0xff, 0xff, 'a'}, ErrShortBuffer},
		{"list8 size past end", []byte{0xc0, 0x10, 0x01, 0x40}, ErrShortBuffer},
		{"list8 missing count", []byte{0xc0, 0x00}, ErrInvalidSize},
		{"list8 count beyond size", []byte{0xc0, 0x02, 0x09, 0x40}, ErrInvalidSize},
		{"list32 huge count", []byte{0xd0, 0x00, 0x00, 0x00, 0x05, 0xff, 0xff, 0xff, 0xff, 0x40}, ErrInvalidSize},
		{"list element escapes size", []byte{0xc0, 0x02, 0x01, 0xa1, 0x03, 'a', 'b', 'c'}, ErrShortBuffer},
		{"list with slack bytes", []byte{0xc0, 0x03, 0x01, 0x40, 0x40}, ErrInvalidSize},
		{"map odd count", []byte{0xc1, 0x02, 0x01, 0x40}, ErrInvalidSize},
		{"array missing ctor", []byte{0xe0, 0x01, 0x00}, ErrInvalidSize},
		{"array bad ctor", []byte{0xe0, 0x03, 0x01, 0xee, 0x00}, ErrInvalidType},
		{"described missing value", []byte{0x00, 0x53, 0x10}, ErrShortBuffer},
		{"bad boolean octet", []byte{0x56, 0x02}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.raw)
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestDecode_DepthLimit(t *testing.T) {
	// maxDepth 层 list8 嵌套，最内层 null
	raw := []byte{0x40}
	for i := 0; i < maxDepth; i++ {
		raw = append([]byte{0xc0, byte(len(raw) + 1), 0x01}, raw...)
	}
	_, _, err := Decode(raw)
	require.NoError(t, err)

	raw = append([]byte{0xc0, byte(len(raw) + 1), 0x01}, raw...)
	_, _, err = Decode(raw)
	assert.ErrorIs(t, err, ErrTooDeep)

	nested := bytes.Repeat([]byte{0x00, 0x40}, maxDepth+5)
	nested = append(nested, 0x40)
	_, _, err = Decode(nested)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestDecode_ZeroWidthArrayBoundedBySize(t *testing.T) {
	// array8 of true (零宽元素)，count 不能超过 size
	raw := []byte{0xe0, 0x04, 0x03, 0x41, 0x00, 0x00}
	_, _, err := Decode(raw)
	// 3 个零宽元素解码后余下 2 字节 slack，应报 size 错误
	assert.ErrorIs(t, err, ErrInvalidSize)

	ok := []byte{0xe0, 0x02, 0x02, 0x41}
	v, err := Unmarshal(ok)
	require.NoError(t, err)
	assert.Equal(t, Array{true, true}, v)
}
