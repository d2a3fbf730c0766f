// Package socks implements the SOCKS5-style address header this transport
// expects at the start of the first application payload: an address-type
// byte followed by a variable-length address and a big-endian port.
package socks

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
)

// AddrType tags the encoding of the address that follows it.
type AddrType byte

const (
	AddrTypeIPv4   AddrType = 0x01
	AddrTypeDomain AddrType = 0x03
	AddrTypeIPv6   AddrType = 0x04
)

// Address is a decoded SOCKS5-style destination: either an IP or a domain
// name, plus a port.
type Address struct {
	Type   AddrType
	IP     net.IP // set when Type is AddrTypeIPv4 or AddrTypeIPv6
	Domain string // set when Type is AddrTypeDomain
	Port   uint16
}

// ErrMalformedAddress reports truncated input or an unrecognized address
// type. The connection wrapper treats this as a fatal protocol error
// (spec.md §4.5).
var ErrMalformedAddress = errors.New("socks: malformed address header")

// ReadAddress decodes one address header from r, dispatching on the leading
// AddrType byte the way protocol.NewAddressParser dispatches on its
// AddressFamilyByte tags, generalized here to a bare io.Reader.
func ReadAddress(r io.Reader) (*Address, error) {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, ErrMalformedAddress
	}

	addr := &Address{Type: AddrType(typeBuf[0])}
	switch addr.Type {
	case AddrTypeIPv4:
		var ip [4]byte
		if _, err := io.ReadFull(r, ip[:]); err != nil {
			return nil, ErrMalformedAddress
		}
		addr.IP = net.IP(ip[:])
	case AddrTypeIPv6:
		var ip [16]byte
		if _, err := io.ReadFull(r, ip[:]); err != nil {
			return nil, ErrMalformedAddress
		}
		addr.IP = net.IP(ip[:])
	case AddrTypeDomain:
		var lenBuf [1]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, ErrMalformedAddress
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(r, domain); err != nil {
			return nil, ErrMalformedAddress
		}
		addr.Domain = string(domain)
	default:
		return nil, ErrMalformedAddress
	}

	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return nil, ErrMalformedAddress
	}
	addr.Port = binary.BigEndian.Uint16(portBuf[:])
	return addr, nil
}

// WriteAddress encodes addr per the SOCKS5-style header layout: AddrType(1)
// || address || Port(2, big-endian).
func WriteAddress(w io.Writer, addr *Address) error {
	var buf []byte
	switch addr.Type {
	case AddrTypeIPv4:
		ip := addr.IP.To4()
		if ip == nil {
			return ErrMalformedAddress
		}
		buf = append(buf, byte(AddrTypeIPv4))
		buf = append(buf, ip...)
	case AddrTypeIPv6:
		ip := addr.IP.To16()
		if ip == nil {
			return ErrMalformedAddress
		}
		buf = append(buf, byte(AddrTypeIPv6))
		buf = append(buf, ip...)
	case AddrTypeDomain:
		if len(addr.Domain) > 255 {
			return ErrMalformedAddress
		}
		buf = append(buf, byte(AddrTypeDomain), byte(len(addr.Domain)))
		buf = append(buf, addr.Domain...)
	default:
		return ErrMalformedAddress
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], addr.Port)
	buf = append(buf, portBuf[:]...)

	_, err := w.Write(buf)
	return err
}
