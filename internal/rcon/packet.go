// Package rcon implements the Source RCON wire protocol over TCP:
// authentication, framed command exchange, and multi-packet response
// reassembly.
package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types defined by the protocol. Servers answer both login and
// command requests; some implementations use type 0 ad hoc, so it is
// accepted wherever a response is expected.
const (
	typeResponse = 0 // command response / auth response marker
	typeCommand  = 2 // command request
	typeLogin    = 3 // auth request
)

// Wire layout: int32le length | int32le id | int32le type | body \0 | \0.
// The length field counts every byte after itself.
const (
	packetHeaderSize = 8               // id + type
	packetPadSize    = 2               // body terminator + trailing pad
	maxPayloadSize   = 4096            // largest accepted body
	maxPacketSize    = packetHeaderSize + packetPadSize + maxPayloadSize
)

// packet is a single decoded RCON frame.
type packet struct {
	Body string
	ID   int32
	Type int32
}

// writePacket encodes p and writes it to w as one frame.
func writePacket(w io.Writer, p packet) error {
	size := int32(packetHeaderSize + len(p.Body) + packetPadSize)

	buf := bytes.NewBuffer(make([]byte, 0, 4+size))
	_ = binary.Write(buf, binary.LittleEndian, size)
	_ = binary.Write(buf, binary.LittleEndian, p.ID)
	_ = binary.Write(buf, binary.LittleEndian, p.Type)
	buf.WriteString(p.Body)
	buf.Write([]byte{0x00, 0x00})

	_, err := w.Write(buf.Bytes())
	return err
}

// readPacket reads exactly one frame from r. A length prefix outside the
// protocol bounds is a ProtocolError; everything else surfaces as-is so
// callers can classify socket failures.
func readPacket(r io.Reader) (packet, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return packet{}, err
	}

	if size < packetHeaderSize+packetPadSize || size > maxPacketSize {
		return packet{}, &ProtocolError{Reason: fmt.Sprintf("invalid packet length %d", size)}
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return packet{}, err
	}

	p := packet{
		ID:   int32(binary.LittleEndian.Uint32(raw[0:4])),
		Type: int32(binary.LittleEndian.Uint32(raw[4:8])),
	}

	body := raw[packetHeaderSize:]
	// Strip the body terminator and trailing pad; tolerate servers that
	// omit the pad byte.
	body = bytes.TrimRight(body, "\x00")
	p.Body = string(body)

	return p, nil
}
