package wire

import "io"

// MsgVerAck completes the version handshake.
type MsgVerAck struct{}

func (m *MsgVerAck) BsvEncode(io.Writer, uint32, MessageEncoding) error { return nil }
func (m *MsgVerAck) Bsvdecode(io.Reader, uint32, MessageEncoding) error { return nil }
func (m *MsgVerAck) Command() string                                   { return CmdVerAck }
func (m *MsgVerAck) MaxPayloadLength(uint32) uint64                     { return 0 }
