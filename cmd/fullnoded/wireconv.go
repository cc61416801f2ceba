package main

import (
	"bytes"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/libsv/go-bt/v2"
)

// blockFromWire converts a decoded wire.MsgBlock, whose header is already
// known to hdr (the header tree has already accepted it off the back of a
// headers response), into the node's own *model.Block. wire.MsgTx shares its
// legacy (no-segwit) binary layout with libsv/go-bt/v2's encoding, so each
// transaction round-trips through BsvEncode/NewTxFromBytes rather than a
// field-by-field copy.
func blockFromWire(hdr *model.ChainedHeader, msg *wire.MsgBlock) (*model.Block, error) {
	txs := make([]*bt.Tx, len(msg.Transactions))
	for i, wtx := range msg.Transactions {
		var buf bytes.Buffer
		if err := wtx.BsvEncode(&buf, 0, wire.BaseEncoding); err != nil {
			return nil, err
		}
		tx, err := bt.NewTxFromBytes(buf.Bytes())
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}

	return model.NewBlock(hdr, txs)
}
