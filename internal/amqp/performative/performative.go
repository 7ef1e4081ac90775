package performative

import (
	"fmt"

	"github.com/taoyao-code/amqp-engine/internal/amqp/codec"
)

// 帧类型（帧头第 6 字节）
const (
	FrameTypeAMQP uint8 = 0x00
	FrameTypeSASL uint8 = 0x01
)

// Code performative 描述符编码（descriptor 的低字节）
type Code uint8

// AMQP 帧上的 performative
const (
	Open        Code = 0x10
	Begin       Code = 0x11
	Attach      Code = 0x12
	Flow        Code = 0x13
	Transfer    Code = 0x14
	Disposition Code = 0x15
	Detach      Code = 0x16
	End         Code = 0x17
	Close       Code = 0x18
)

// SASL 帧上的 performative
const (
	SASLMechanisms Code = 0x40
	SASLInit       Code = 0x41
	SASLChallenge  Code = 0x42
	SASLResponse   Code = 0x43
	SASLOutcome    Code = 0x44
)

type info struct {
	name      string
	symbol    codec.Symbol
	frameType uint8
}

var catalogue = map[Code]info{
	Open:        {"open", "amqp:open:list", FrameTypeAMQP},
	Begin:       {"begin", "amqp:begin:list", FrameTypeAMQP},
	Attach:      {"attach", "amqp:attach:list", FrameTypeAMQP},
	Flow:        {"flow", "amqp:flow:list", FrameTypeAMQP},
	Transfer:    {"transfer", "amqp:transfer:list", FrameTypeAMQP},
	Disposition: {"disposition", "amqp:disposition:list", FrameTypeAMQP},
	Detach:      {"detach", "amqp:detach:list", FrameTypeAMQP},
	End:         {"end", "amqp:end:list", FrameTypeAMQP},
	Close:       {"close", "amqp:close:list", FrameTypeAMQP},

	SASLMechanisms: {"sasl-mechanisms", "amqp:sasl-mechanisms:list", FrameTypeSASL},
	SASLInit:       {"sasl-init", "amqp:sasl-init:list", FrameTypeSASL},
	SASLChallenge:  {"sasl-challenge", "amqp:sasl-challenge:list", FrameTypeSASL},
	SASLResponse:   {"sasl-response", "amqp:sasl-response:list", FrameTypeSASL},
	SASLOutcome:    {"sasl-outcome", "amqp:sasl-outcome:list", FrameTypeSASL},
}

var bySymbol = func() map[codec.Symbol]Code {
	m := make(map[codec.Symbol]Code, len(catalogue))
	for c, i := range catalogue {
		m[i.symbol] = c
	}
	return m
}()

// String 返回 performative 名称，未知编码返回十六进制
func (c Code) String() string {
	if i, ok := catalogue[c]; ok {
		return i.name
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

// Known 是否为协议定义的 performative
func (c Code) Known() bool {
	_, ok := catalogue[c]
	return ok
}

// Symbol 返回符号形式的描述符
func (c Code) Symbol() codec.Symbol { return catalogue[c].symbol }

// FrameType 返回该 performative 所属的帧类型
func (c Code) FrameType() uint8 { return catalogue[c].frameType }

// FromSymbol 将符号描述符解析为编码
func FromSymbol(s codec.Symbol) (Code, bool) {
	c, ok := bySymbol[s]
	return c, ok
}

// ForFrameType 返回某帧类型下的全部 performative（按编码升序）
func ForFrameType(frameType uint8) []Code {
	var out []Code
	for c := 0; c <= 0xFF; c++ {
		if i, ok := catalogue[Code(c)]; ok && i.frameType == frameType {
			out = append(out, Code(c))
		}
	}
	return out
}
