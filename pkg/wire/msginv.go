package wire

import (
	"fmt"
	"io"
)

// MaxInvPerMsg caps the number of entries in a single inv/getdata message.
const MaxInvPerMsg = 50000

// MsgInv announces objects (transactions or blocks) the sender has
// available, for the receiver to request with getdata if wanted.
type MsgInv struct {
	InvList []*InvVect
}

func (m *MsgInv) AddInvVect(iv *InvVect) error {
	if len(m.InvList) >= MaxInvPerMsg {
		return fmt.Errorf("wire: inv message already has the max allowed %d entries", MaxInvPerMsg)
	}
	m.InvList = append(m.InvList, iv)
	return nil
}

func (m *MsgInv) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if len(m.InvList) > MaxInvPerMsg {
		return fmt.Errorf("wire: too many inv entries %d [max %d]", len(m.InvList), MaxInvPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.InvList))); err != nil {
		return err
	}
	for _, iv := range m.InvList {
		if err := iv.encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgInv) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxInvPerMsg {
		return fmt.Errorf("wire: too many inv entries %d [max %d]", count, MaxInvPerMsg)
	}

	m.InvList = make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv := &InvVect{}
		if err := iv.decode(r); err != nil {
			return err
		}
		m.InvList = append(m.InvList, iv)
	}
	return nil
}

func (m *MsgInv) Command() string { return CmdInv }

func (m *MsgInv) MaxPayloadLength(uint32) uint64 {
	return 9 + MaxInvPerMsg*36
}

// MsgGetData requests the full objects named by InvList.
type MsgGetData struct {
	InvList []*InvVect
}

func (m *MsgGetData) AddInvVect(iv *InvVect) error {
	if len(m.InvList) >= MaxInvPerMsg {
		return fmt.Errorf("wire: getdata message already has the max allowed %d entries", MaxInvPerMsg)
	}
	m.InvList = append(m.InvList, iv)
	return nil
}

func (m *MsgGetData) BsvEncode(w io.Writer, pver uint32, enc MessageEncoding) error {
	return (&MsgInv{InvList: m.InvList}).BsvEncode(w, pver, enc)
}

func (m *MsgGetData) Bsvdecode(r io.Reader, pver uint32, enc MessageEncoding) error {
	inv := &MsgInv{}
	if err := inv.Bsvdecode(r, pver, enc); err != nil {
		return err
	}
	m.InvList = inv.InvList
	return nil
}

func (m *MsgGetData) Command() string { return CmdGetData }

func (m *MsgGetData) MaxPayloadLength(uint32) uint64 {
	return 9 + MaxInvPerMsg*36
}

// MsgNotFound answers a getdata request for objects the sender doesn't
// have.
type MsgNotFound struct {
	InvList []*InvVect
}

func (m *MsgNotFound) BsvEncode(w io.Writer, pver uint32, enc MessageEncoding) error {
	return (&MsgInv{InvList: m.InvList}).BsvEncode(w, pver, enc)
}

func (m *MsgNotFound) Bsvdecode(r io.Reader, pver uint32, enc MessageEncoding) error {
	inv := &MsgInv{}
	if err := inv.Bsvdecode(r, pver, enc); err != nil {
		return err
	}
	m.InvList = inv.InvList
	return nil
}

func (m *MsgNotFound) Command() string { return CmdNotFound }

func (m *MsgNotFound) MaxPayloadLength(uint32) uint64 {
	return 9 + MaxInvPerMsg*36
}
