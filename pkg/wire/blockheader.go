package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/libsv/go-bt/v2/chainhash"
)

// BlockHeaderLen is the serialized size of a BlockHeader in bytes.
const BlockHeaderLen = 80

// BlockHeader is the 80-byte block header common to every block on the
// chain, independent of the chained-header tree bookkeeping layered on top
// of it elsewhere in the tree (see model.ChainedHeader).
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

func (h *BlockHeader) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if err := binary.Write(w, binary.LittleEndian, h.Version); err != nil {
		return err
	}
	if _, err := w.Write(h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := writeTimestamp32(w, h.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.Bits); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.Nonce)
}

func (h *BlockHeader) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return err
	}
	ts, err := readTimestamp32(r)
	if err != nil {
		return err
	}
	h.Timestamp = ts

	if err := binary.Read(r, binary.LittleEndian, &h.Bits); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &h.Nonce)
}

// BlockHash computes the double-SHA256 hash of the serialized header, the
// value that identifies the block throughout the tree.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := make([]byte, 0, BlockHeaderLen)

	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], uint32(h.Version))
	buf = append(buf, versionBytes[:]...)
	buf = append(buf, h.PrevBlock[:]...)
	buf = append(buf, h.MerkleRoot[:]...)

	var tsBytes [4]byte
	binary.LittleEndian.PutUint32(tsBytes[:], uint32(h.Timestamp.Unix()))
	buf = append(buf, tsBytes[:]...)

	var bitsBytes [4]byte
	binary.LittleEndian.PutUint32(bitsBytes[:], h.Bits)
	buf = append(buf, bitsBytes[:]...)

	var nonceBytes [4]byte
	binary.LittleEndian.PutUint32(nonceBytes[:], h.Nonce)
	buf = append(buf, nonceBytes[:]...)

	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}
