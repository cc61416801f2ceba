package wire

import (
	"encoding/binary"
	"io"

	"github.com/libsv/go-bt/v2/chainhash"
)

// InvType identifies the kind of object an InvVect refers to.
type InvType uint32

const (
	InvTypeError InvType = iota
	InvTypeTx
	InvTypeBlock
)

// InvVect is one entry of an inv/getdata message's payload.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

func (iv *InvVect) encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(iv.Type)); err != nil {
		return err
	}
	_, err := w.Write(iv.Hash[:])
	return err
}

func (iv *InvVect) decode(r io.Reader) error {
	var t uint32
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return err
	}
	iv.Type = InvType(t)
	_, err := io.ReadFull(r, iv.Hash[:])
	return err
}
