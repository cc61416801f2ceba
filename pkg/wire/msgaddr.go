package wire

import (
	"fmt"
	"io"
)

// MaxAddrPerMsg caps the number of addresses carried in a single addr
// message, matching the 1000-entry limit peers enforce.
const MaxAddrPerMsg = 1000

// MsgAddr carries a batch of peer endpoints, each with the time the sender
// last saw it active.
type MsgAddr struct {
	AddrList []*NetAddress
}

func (m *MsgAddr) AddAddress(na *NetAddress) error {
	if len(m.AddrList) >= MaxAddrPerMsg {
		return fmt.Errorf("wire: addr message already has the max allowed %d addresses", MaxAddrPerMsg)
	}
	m.AddrList = append(m.AddrList, na)
	return nil
}

func (m *MsgAddr) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if len(m.AddrList) > MaxAddrPerMsg {
		return fmt.Errorf("wire: too many addresses for message %d [max %d]", len(m.AddrList), MaxAddrPerMsg)
	}

	if err := WriteVarInt(w, uint64(len(m.AddrList))); err != nil {
		return err
	}

	for _, na := range m.AddrList {
		if err := na.encode(w, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgAddr) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return fmt.Errorf("wire: too many addresses for message %d [max %d]", count, MaxAddrPerMsg)
	}

	m.AddrList = make([]*NetAddress, 0, count)
	for i := uint64(0); i < count; i++ {
		var na NetAddress
		if err := na.decode(r, true); err != nil {
			return err
		}
		m.AddrList = append(m.AddrList, &na)
	}
	return nil
}

func (m *MsgAddr) Command() string { return CmdAddr }

func (m *MsgAddr) MaxPayloadLength(uint32) uint64 {
	return 9 + MaxAddrPerMsg*30
}
