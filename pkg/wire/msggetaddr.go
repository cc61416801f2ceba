package wire

import "io"

// MsgGetAddr requests a peer's known-good address list.
type MsgGetAddr struct{}

func (m *MsgGetAddr) BsvEncode(io.Writer, uint32, MessageEncoding) error { return nil }
func (m *MsgGetAddr) Bsvdecode(io.Reader, uint32, MessageEncoding) error { return nil }
func (m *MsgGetAddr) Command() string                                   { return CmdGetAddr }
func (m *MsgGetAddr) MaxPayloadLength(uint32) uint64                    { return 0 }
