package wire

import (
	"encoding/binary"
	"io"
)

// MsgPing is sent periodically to check a peer's liveness; the nonce is
// echoed back in the corresponding pong.
type MsgPing struct {
	Nonce uint64
}

func (m *MsgPing) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	return binary.Write(w, binary.LittleEndian, m.Nonce)
}

func (m *MsgPing) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	return binary.Read(r, binary.LittleEndian, &m.Nonce)
}

func (m *MsgPing) Command() string { return CmdPing }

func (m *MsgPing) MaxPayloadLength(uint32) uint64 { return 8 }

// MsgPong answers a MsgPing by echoing its nonce.
type MsgPong struct {
	Nonce uint64
}

func (m *MsgPong) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	return binary.Write(w, binary.LittleEndian, m.Nonce)
}

func (m *MsgPong) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	return binary.Read(r, binary.LittleEndian, &m.Nonce)
}

func (m *MsgPong) Command() string { return CmdPong }

func (m *MsgPong) MaxPayloadLength(uint32) uint64 { return 8 }
