package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// 操作类型
	OpHeartbeat      = 2 // 心跳
	OpHeartbeatReply = 3 // 心跳回应
	OpMessage        = 5 // 消息
	OpUserAuth       = 7 // 认证
	OpConnect        = 8 // 连接成功
)

const (
	// 协议版本
	ProtocolVersion = 1
	// zlib 压缩的消息体
	VersionZlib = 2
	// 头部长度
	HeaderLength = 16
	// 单个数据包长度上限
	MaxPacketLength = 1 << 20
)

var (
	ErrShortPacket   = errors.New("数据包长度不足")
	ErrPacketTooLong = errors.New("数据包长度异常")
)

type Packet struct {
	PacketLength int32  // 包长度
	HeaderLength int16  // 头部长度
	Version      int16  // 协议版本
	Operation    int32  // 操作类型
	SequenceID   int32  // 序列号
	Body         []byte // 包体
}

// 编码数据包
func (p *Packet) Encode() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.BigEndian, p.PacketLength)
	binary.Write(buf, binary.BigEndian, p.HeaderLength)
	binary.Write(buf, binary.BigEndian, p.Version)
	binary.Write(buf, binary.BigEndian, p.Operation)
	binary.Write(buf, binary.BigEndian, p.SequenceID)

	if p.Body != nil {
		buf.Write(p.Body)
	}

	return buf.Bytes()
}

// 解码数据包
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, ErrShortPacket
	}

	packet := &Packet{
		PacketLength: int32(binary.BigEndian.Uint32(data[0:4])),
		HeaderLength: int16(binary.BigEndian.Uint16(data[4:6])),
		Version:      int16(binary.BigEndian.Uint16(data[6:8])),
		Operation:    int32(binary.BigEndian.Uint32(data[8:12])),
		SequenceID:   int32(binary.BigEndian.Uint32(data[12:16])),
	}

	end := len(data)
	if l := int(packet.PacketLength); l >= HeaderLength && l < end {
		end = l
	}
	if end > HeaderLength {
		packet.Body = data[HeaderLength:end]
	}

	return packet, nil
}

// SplitPackets 拆分连续拼接的多个数据包
func SplitPackets(data []byte) ([]*Packet, error) {
	var packets []*Packet

	offset := 0
	for offset < len(data) {
		if offset+HeaderLength > len(data) {
			return packets, ErrShortPacket
		}

		packetLength := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		if packetLength < HeaderLength || packetLength > MaxPacketLength {
			return packets, fmt.Errorf("%w: %d", ErrPacketTooLong, packetLength)
		}
		if offset+packetLength > len(data) {
			return packets, ErrShortPacket
		}

		packet, err := DecodePacket(data[offset : offset+packetLength])
		if err != nil {
			return packets, err
		}
		packets = append(packets, packet)

		offset += packetLength
	}

	return packets, nil
}

// Expand 展开压缩消息，返回其中的所有数据包
func Expand(packet *Packet) ([]*Packet, error) {
	if packet.Operation != OpMessage || packet.Version != VersionZlib {
		return []*Packet{packet}, nil
	}

	decompressed, err := decompress(packet.Body)
	if err != nil {
		return nil, fmt.Errorf("解压缩失败: %w", err)
	}

	inner, err := SplitPackets(decompressed)
	if err != nil {
		return nil, err
	}

	var packets []*Packet
	for _, p := range inner {
		expanded, err := Expand(p)
		if err != nil {
			return packets, err
		}
		packets = append(packets, expanded...)
	}
	return packets, nil
}

// decompress zlib解压缩
func decompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(io.LimitReader(reader, MaxPacketLength*8))
}

// 创建心跳包
func NewHeartbeatPacket() *Packet {
	return NewPacket(OpHeartbeat, nil)
}

// 创建认证包
func NewAuthPacket(roomID int, token string) *Packet {
	return NewPacket(OpUserAuth, BuildAuthMessage(roomID, token))
}

// NewPacket 创建指定操作类型的数据包
func NewPacket(operation int32, body []byte) *Packet {
	return &Packet{
		PacketLength: int32(HeaderLength + len(body)),
		HeaderLength: HeaderLength,
		Version:      ProtocolVersion,
		Operation:    operation,
		SequenceID:   1,
		Body:         body,
	}
}
