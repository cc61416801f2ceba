package wire

import (
	"io"

	"github.com/libsv/go-bt/v2/chainhash"
)

// RejectCode is the machine-readable reason code carried in a reject
// message.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonStandard     RejectCode = 0x40
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// MsgReject notifies a peer why one of their earlier messages was refused.
type MsgReject struct {
	Cmd    string
	Code   RejectCode
	Reason string
	Hash   chainhash.Hash
}

func (m *MsgReject) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if err := WriteVarString(w, m.Cmd); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.Code)}); err != nil {
		return err
	}
	if err := WriteVarString(w, m.Reason); err != nil {
		return err
	}
	if m.Cmd == CmdBlock || m.Cmd == CmdTx {
		return writeHash(w, &m.Hash)
	}
	return nil
}

func (m *MsgReject) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	cmd, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.Cmd = cmd

	var codeBuf [1]byte
	if _, err := io.ReadFull(r, codeBuf[:]); err != nil {
		return err
	}
	m.Code = RejectCode(codeBuf[0])

	reason, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.Reason = reason

	if m.Cmd == CmdBlock || m.Cmd == CmdTx {
		h, err := readHash(r)
		if err != nil {
			return err
		}
		m.Hash = *h
	}
	return nil
}

func (m *MsgReject) Command() string { return CmdReject }

func (m *MsgReject) MaxPayloadLength(uint32) uint64 {
	return uint64(CommandSize) + 1 + MaxVarIntPayload + chainhash.HashSize
}
