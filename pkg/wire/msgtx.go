package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libsv/go-bt/v2/chainhash"
)

// MaxTxInPerMessage and MaxTxOutPerMessage bound how many inputs/outputs a
// single decoded transaction may claim to have, a guard against a peer
// sending a length prefix that would otherwise force a huge allocation.
const (
	MaxTxInPerMessage  = 1_000_000
	MaxTxOutPerMessage = 1_000_000
	MaxScriptSize      = 10_000_000
)

// OutPoint identifies one output of a previous transaction.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (op *OutPoint) encode(w io.Writer) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, op.Index)
}

func (op *OutPoint) decode(r io.Reader) error {
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &op.Index)
}

// TxIn is one transaction input: the output it spends, the unlocking
// script, and the sequence number.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

func (ti *TxIn) encode(w io.Writer) error {
	if err := ti.PreviousOutPoint.encode(w); err != nil {
		return err
	}
	if err := WriteVarBytes(w, ti.SignatureScript); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, ti.Sequence)
}

func (ti *TxIn) decode(r io.Reader) error {
	if err := ti.PreviousOutPoint.decode(r); err != nil {
		return err
	}
	script, err := ReadVarBytes(r, MaxScriptSize, "signatureScript")
	if err != nil {
		return err
	}
	ti.SignatureScript = script
	return binary.Read(r, binary.LittleEndian, &ti.Sequence)
}

// TxOut is one transaction output: the value it carries and its locking
// script.
type TxOut struct {
	Value    int64
	PkScript []byte
}

func (to *TxOut) encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, to.Value); err != nil {
		return err
	}
	return WriteVarBytes(w, to.PkScript)
}

func (to *TxOut) decode(r io.Reader) error {
	if err := binary.Read(r, binary.LittleEndian, &to.Value); err != nil {
		return err
	}
	script, err := ReadVarBytes(r, MaxScriptSize, "pkScript")
	if err != nil {
		return err
	}
	to.PkScript = script
	return nil
}

// MsgTx is a full Bitcoin-family transaction.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

func (m *MsgTx) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if err := binary.Write(w, binary.LittleEndian, m.Version); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.TxIn))); err != nil {
		return err
	}
	for _, in := range m.TxIn {
		if err := in.encode(w); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(m.TxOut))); err != nil {
		return err
	}
	for _, out := range m.TxOut {
		if err := out.encode(w); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, m.LockTime)
}

func (m *MsgTx) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	if err := binary.Read(r, binary.LittleEndian, &m.Version); err != nil {
		return err
	}

	inCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if inCount > MaxTxInPerMessage {
		return fmt.Errorf("wire: too many transaction inputs %d [max %d]", inCount, MaxTxInPerMessage)
	}
	m.TxIn = make([]*TxIn, inCount)
	for i := range m.TxIn {
		in := &TxIn{}
		if err := in.decode(r); err != nil {
			return err
		}
		m.TxIn[i] = in
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if outCount > MaxTxOutPerMessage {
		return fmt.Errorf("wire: too many transaction outputs %d [max %d]", outCount, MaxTxOutPerMessage)
	}
	m.TxOut = make([]*TxOut, outCount)
	for i := range m.TxOut {
		out := &TxOut{}
		if err := out.decode(r); err != nil {
			return err
		}
		m.TxOut[i] = out
	}

	return binary.Read(r, binary.LittleEndian, &m.LockTime)
}

func (m *MsgTx) Command() string { return CmdTx }

func (m *MsgTx) MaxPayloadLength(uint32) uint64 { return MaxExtMsgPayload }

// TxHash computes the transaction's double-SHA256 id over its serialized
// form.
func (m *MsgTx) TxHash() (chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := m.BsvEncode(&buf, 0, BaseEncoding); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(buf.Bytes()), nil
}
