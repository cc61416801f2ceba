package wire

import (
	"fmt"
	"io"
)

// MaxTxPerBlock guards against a corrupt or hostile transaction-count
// prefix forcing a huge up-front allocation.
const MaxTxPerBlock = 1_000_000_000

// MsgBlock is a full block: header plus its ordered transactions, the
// first of which is a coinbase (or coinstake).
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

func (m *MsgBlock) BsvEncode(w io.Writer, pver uint32, enc MessageEncoding) error {
	if err := m.Header.BsvEncode(w, pver, enc); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.Transactions))); err != nil {
		return err
	}
	for _, tx := range m.Transactions {
		if err := tx.BsvEncode(w, pver, enc); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgBlock) Bsvdecode(r io.Reader, pver uint32, enc MessageEncoding) error {
	if err := m.Header.Bsvdecode(r, pver, enc); err != nil {
		return err
	}

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxPerBlock {
		return fmt.Errorf("wire: too many transactions to fit into a block %d [max %d]", count, MaxTxPerBlock)
	}

	m.Transactions = make([]*MsgTx, count)
	for i := range m.Transactions {
		tx := &MsgTx{}
		if err := tx.Bsvdecode(r, pver, enc); err != nil {
			return err
		}
		m.Transactions[i] = tx
	}
	return nil
}

func (m *MsgBlock) Command() string { return CmdBlock }

func (m *MsgBlock) MaxPayloadLength(uint32) uint64 { return MaxExtMsgPayload }
