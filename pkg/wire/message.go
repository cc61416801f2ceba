package wire

import "fmt"

// MakeEmptyMessage returns a freshly zero-valued Message for the given
// command string, for use as ReadMessage's makeEmptyMessage callback.
func MakeEmptyMessage(command string) (Message, error) {
	switch command {
	case CmdVersion:
		return &MsgVersion{}, nil
	case CmdVerAck:
		return &MsgVerAck{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdPong:
		return &MsgPong{}, nil
	case CmdGetAddr:
		return &MsgGetAddr{}, nil
	case CmdAddr:
		return &MsgAddr{}, nil
	case CmdInv:
		return &MsgInv{}, nil
	case CmdGetData:
		return &MsgGetData{}, nil
	case CmdGetBlocks:
		return &MsgGetBlocks{}, nil
	case CmdGetHeaders:
		return &MsgGetHeaders{}, nil
	case CmdHeaders:
		return &MsgHeaders{}, nil
	case CmdBlock:
		return &MsgBlock{}, nil
	case CmdTx:
		return &MsgTx{}, nil
	case CmdSendHeaders:
		return &MsgSendHeaders{}, nil
	case CmdReject:
		return &MsgReject{}, nil
	case CmdNotFound:
		return &MsgNotFound{}, nil
	default:
		return nil, fmt.Errorf("wire: unhandled command %q", command)
	}
}
