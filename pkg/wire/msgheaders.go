package wire

import (
	"fmt"
	"io"
)

// MaxHeadersPerMsg caps the number of headers answered per getheaders
// request.
const MaxHeadersPerMsg = 2000

// MsgHeaders answers a getheaders request with a run of block headers, each
// followed by a zero transaction count (headers-only, no bodies).
type MsgHeaders struct {
	Headers []*BlockHeader
}

func (m *MsgHeaders) AddBlockHeader(h *BlockHeader) error {
	if len(m.Headers) >= MaxHeadersPerMsg {
		return fmt.Errorf("wire: headers message already has the max allowed %d headers", MaxHeadersPerMsg)
	}
	m.Headers = append(m.Headers, h)
	return nil
}

func (m *MsgHeaders) BsvEncode(w io.Writer, pver uint32, enc MessageEncoding) error {
	if len(m.Headers) > MaxHeadersPerMsg {
		return fmt.Errorf("wire: too many headers for message %d [max %d]", len(m.Headers), MaxHeadersPerMsg)
	}

	if err := WriteVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}

	for _, h := range m.Headers {
		if err := h.BsvEncode(w, pver, enc); err != nil {
			return err
		}
		// txCount is always 0 for a headers-only response.
		if err := WriteVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgHeaders) Bsvdecode(r io.Reader, pver uint32, enc MessageEncoding) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxHeadersPerMsg {
		return fmt.Errorf("wire: too many headers for message %d [max %d]", count, MaxHeadersPerMsg)
	}

	m.Headers = make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		h := &BlockHeader{}
		if err := h.Bsvdecode(r, pver, enc); err != nil {
			return err
		}
		if _, err := ReadVarInt(r); err != nil {
			return err
		}
		m.Headers = append(m.Headers, h)
	}
	return nil
}

func (m *MsgHeaders) Command() string { return CmdHeaders }

func (m *MsgHeaders) MaxPayloadLength(uint32) uint64 {
	return 9 + MaxHeadersPerMsg*(BlockHeaderLen+1)
}

// MsgSendHeaders requests that new blocks be announced via headers rather
// than inv, once supported by both peers.
type MsgSendHeaders struct{}

func (m *MsgSendHeaders) BsvEncode(io.Writer, uint32, MessageEncoding) error { return nil }
func (m *MsgSendHeaders) Bsvdecode(io.Reader, uint32, MessageEncoding) error { return nil }
func (m *MsgSendHeaders) Command() string                                   { return CmdSendHeaders }
func (m *MsgSendHeaders) MaxPayloadLength(uint32) uint64                    { return 0 }
