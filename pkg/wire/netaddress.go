package wire

import (
	"encoding/binary"
	"io"
	"net"
	"time"
)

var ipv4InIPv6Prefix = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// NetAddress describes a peer's endpoint as carried in version/addr
// messages.
type NetAddress struct {
	Timestamp time.Time
	Services  uint64
	IP        net.IP
	Port      uint16
}

// encode writes the address in the 30-byte addr-list format (timestamp,
// services, 16-byte IP, port). includeTimestamp is false only for the
// version message's own address fields, which omit it (26 bytes).
func (na *NetAddress) encode(w io.Writer, includeTimestamp bool) error {
	if includeTimestamp {
		if err := writeTimestamp32(w, na.Timestamp); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, na.Services); err != nil {
		return err
	}

	var ip [16]byte
	if ip4 := na.IP.To4(); ip4 != nil {
		copy(ip[:], ipv4InIPv6Prefix)
		copy(ip[12:], ip4)
	} else if ip16 := na.IP.To16(); ip16 != nil {
		copy(ip[:], ip16)
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}

	return binary.Write(w, binary.BigEndian, na.Port)
}

func (na *NetAddress) decode(r io.Reader, includeTimestamp bool) error {
	if includeTimestamp {
		ts, err := readTimestamp32(r)
		if err != nil {
			return err
		}
		na.Timestamp = ts
	}

	if err := binary.Read(r, binary.LittleEndian, &na.Services); err != nil {
		return err
	}

	var ip [16]byte
	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return err
	}
	na.IP = net.IP(ip[:]).To16()

	return binary.Read(r, binary.BigEndian, &na.Port)
}
