package wire

import (
	"encoding/binary"
	"io"
	"time"
)

// MsgVersion is the first message sent by the connection initiator during
// the handshake described in §6.
type MsgVersion struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	LastBlock       int32
	Relay           bool
}

func (m *MsgVersion) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if err := binary.Write(w, binary.LittleEndian, m.ProtocolVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Services); err != nil {
		return err
	}
	if err := writeTimestamp64(w, m.Timestamp); err != nil {
		return err
	}
	if err := m.AddrRecv.encode(w, false); err != nil {
		return err
	}
	if err := m.AddrFrom.encode(w, false); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, m.UserAgent); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.LastBlock); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, m.Relay)
}

func (m *MsgVersion) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	if err := binary.Read(r, binary.LittleEndian, &m.ProtocolVersion); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Services); err != nil {
		return err
	}
	ts, err := readTimestamp64(r)
	if err != nil {
		return err
	}
	m.Timestamp = ts

	if err := m.AddrRecv.decode(r, false); err != nil {
		return err
	}
	if err := m.AddrFrom.decode(r, false); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Nonce); err != nil {
		return err
	}

	userAgent, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.UserAgent = userAgent

	if err := binary.Read(r, binary.LittleEndian, &m.LastBlock); err != nil {
		return err
	}

	// Relay is absent on older peers; a short read here is not an error.
	if err := binary.Read(r, binary.LittleEndian, &m.Relay); err != nil {
		m.Relay = true
	}

	return nil
}

func (m *MsgVersion) Command() string { return CmdVersion }

func (m *MsgVersion) MaxPayloadLength(uint32) uint64 { return 358 }
