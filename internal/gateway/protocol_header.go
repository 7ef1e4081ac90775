package gateway

import (
	"errors"
	"fmt"
)

// HeaderSize 协议头长度："AMQP" id major minor revision
const HeaderSize = 8

// ProtocolID 协议头第 5 字节
type ProtocolID uint8

const (
	ProtoAMQP ProtocolID = 0
	ProtoTLS  ProtocolID = 2
	ProtoSASL ProtocolID = 3
)

func (p ProtocolID) String() string {
	switch p {
	case ProtoAMQP:
		return "amqp"
	case ProtoTLS:
		return "tls"
	case ProtoSASL:
		return "sasl"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// ErrNotAMQP 前 4 字节不是 "AMQP"
var ErrNotAMQP = errors.New("gateway: not an AMQP protocol header")

// ProtocolHeader 连接建立时双方交换的协议头
type ProtocolHeader struct {
	ID       ProtocolID
	Major    uint8
	Minor    uint8
	Revision uint8
}

// SupportedHeader 本端支持的唯一协议头（AMQP 1.0.0，无 SASL/TLS）
var SupportedHeader = ProtocolHeader{ID: ProtoAMQP, Major: 1, Minor: 0, Revision: 0}

// ParseHeader 解析 8 字节协议头
func ParseHeader(b []byte) (ProtocolHeader, error) {
	if len(b) != HeaderSize {
		return ProtocolHeader{}, fmt.Errorf("protocol header is %d bytes, want %d", len(b), HeaderSize)
	}
	if string(b[:4]) != "AMQP" {
		return ProtocolHeader{}, fmt.Errorf("%w: %q", ErrNotAMQP, b[:4])
	}
	return ProtocolHeader{ID: ProtocolID(b[4]), Major: b[5], Minor: b[6], Revision: b[7]}, nil
}

// Bytes 编码为 8 字节
func (h ProtocolHeader) Bytes() []byte {
	return []byte{'A', 'M', 'Q', 'P', byte(h.ID), h.Major, h.Minor, h.Revision}
}

func (h ProtocolHeader) String() string {
	return fmt.Sprintf("AMQP %s %d.%d.%d", h.ID, h.Major, h.Minor, h.Revision)
}
