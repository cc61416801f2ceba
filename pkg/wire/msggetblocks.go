package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libsv/go-bt/v2/chainhash"
)

// MaxBlockLocatorsPerMsg caps the hash count in a getblocks/getheaders
// locator, matching the number of hashes an exponential-backoff locator
// ever produces for a realistic chain height.
const MaxBlockLocatorsPerMsg = 500

// MsgGetBlocks requests inv announcements for the blocks following the
// locator's best-known common ancestor, up to HashStop (or 500 blocks).
type MsgGetBlocks struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

func (m *MsgGetBlocks) AddBlockLocatorHash(h *chainhash.Hash) error {
	if len(m.BlockLocatorHashes) >= MaxBlockLocatorsPerMsg {
		return fmt.Errorf("wire: getblocks locator already has the max allowed %d hashes", MaxBlockLocatorsPerMsg)
	}
	m.BlockLocatorHashes = append(m.BlockLocatorHashes, h)
	return nil
}

func (m *MsgGetBlocks) BsvEncode(w io.Writer, _ uint32, _ MessageEncoding) error {
	if err := binary.Write(w, binary.LittleEndian, m.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.BlockLocatorHashes))); err != nil {
		return err
	}
	for _, h := range m.BlockLocatorHashes {
		if err := writeHash(w, h); err != nil {
			return err
		}
	}
	return writeHash(w, &m.HashStop)
}

func (m *MsgGetBlocks) Bsvdecode(r io.Reader, _ uint32, _ MessageEncoding) error {
	if err := binary.Read(r, binary.LittleEndian, &m.ProtocolVersion); err != nil {
		return err
	}

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("wire: too many block locator hashes %d [max %d]", count, MaxBlockLocatorsPerMsg)
	}

	m.BlockLocatorHashes = make([]*chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := readHash(r)
		if err != nil {
			return err
		}
		m.BlockLocatorHashes = append(m.BlockLocatorHashes, h)
	}

	stop, err := readHash(r)
	if err != nil {
		return err
	}
	m.HashStop = *stop
	return nil
}

func (m *MsgGetBlocks) Command() string { return CmdGetBlocks }

func (m *MsgGetBlocks) MaxPayloadLength(uint32) uint64 {
	return 4 + 9 + MaxBlockLocatorsPerMsg*32 + 32
}

// MsgGetHeaders requests up to 2000 headers following the locator's
// best-known common ancestor, identical in shape to MsgGetBlocks.
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

func (m *MsgGetHeaders) AddBlockLocatorHash(h *chainhash.Hash) error {
	if len(m.BlockLocatorHashes) >= MaxBlockLocatorsPerMsg {
		return fmt.Errorf("wire: getheaders locator already has the max allowed %d hashes", MaxBlockLocatorsPerMsg)
	}
	m.BlockLocatorHashes = append(m.BlockLocatorHashes, h)
	return nil
}

func (m *MsgGetHeaders) BsvEncode(w io.Writer, pver uint32, enc MessageEncoding) error {
	gb := MsgGetBlocks{ProtocolVersion: m.ProtocolVersion, BlockLocatorHashes: m.BlockLocatorHashes, HashStop: m.HashStop}
	return gb.BsvEncode(w, pver, enc)
}

func (m *MsgGetHeaders) Bsvdecode(r io.Reader, pver uint32, enc MessageEncoding) error {
	gb := MsgGetBlocks{}
	if err := gb.Bsvdecode(r, pver, enc); err != nil {
		return err
	}
	m.ProtocolVersion = gb.ProtocolVersion
	m.BlockLocatorHashes = gb.BlockLocatorHashes
	m.HashStop = gb.HashStop
	return nil
}

func (m *MsgGetHeaders) Command() string { return CmdGetHeaders }

func (m *MsgGetHeaders) MaxPayloadLength(uint32) uint64 {
	return 4 + 9 + MaxBlockLocatorsPerMsg*32 + 32
}
