package nano

import (
	"bytes"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Protocol identifies the scheme of a ResourceLocator. Values other than
// the directory marker are well-known schemes.
type Protocol uint8

const (
	ProtocolHTTP   Protocol = 0x00
	ProtocolHTTPS  Protocol = 0x01
	ProtocolShared Protocol = 0x02

	// ProtocolDirectory marks a directory-indexed locator: the first body
	// byte selects a base URL from an injected directory table and the rest
	// is appended verbatim.
	ProtocolDirectory Protocol = 0xFF
)

// Directory maps locator index bytes to base URLs for directory-indexed
// resource locators.
type Directory map[uint8]string

// ResourceLocator is protocol(1) | length(1) | bytes(length).
type ResourceLocator struct {
	Protocol Protocol
	Body     []byte
}

func parseResourceLocator(s *kaitai.Stream) (ResourceLocator, error) {
	var rl ResourceLocator
	proto, err := s.ReadU1()
	if err != nil {
		return rl, err
	}
	switch Protocol(proto) {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolShared, ProtocolDirectory:
	default:
		return rl, fmt.Errorf("unknown locator protocol 0x%02x", proto)
	}
	length, err := s.ReadU1()
	if err != nil {
		return rl, err
	}
	body, err := s.ReadBytes(int(length))
	if err != nil {
		return rl, err
	}
	rl.Protocol = Protocol(proto)
	rl.Body = body
	return rl, nil
}

func (rl *ResourceLocator) serialize(buf *bytes.Buffer) {
	buf.WriteByte(byte(rl.Protocol))
	buf.WriteByte(byte(len(rl.Body)))
	buf.Write(rl.Body)
}

// Resolve expands the locator to a URL. Directory-indexed locators consult
// the supplied table; the table may be nil for the well-known schemes.
func (rl *ResourceLocator) Resolve(dir Directory) (string, error) {
	switch rl.Protocol {
	case ProtocolHTTP:
		return "http://" + string(rl.Body), nil
	case ProtocolHTTPS:
		return "https://" + string(rl.Body), nil
	case ProtocolShared:
		return "shared://" + string(rl.Body), nil
	case ProtocolDirectory:
		if len(rl.Body) == 0 {
			return "", fmt.Errorf("directory locator has empty body")
		}
		base, ok := dir[rl.Body[0]]
		if !ok {
			return "", fmt.Errorf("no directory entry for index %d", rl.Body[0])
		}
		return base + string(rl.Body[1:]), nil
	}
	return "", fmt.Errorf("unknown locator protocol 0x%02x", uint8(rl.Protocol))
}

// NewResourceLocator builds a locator from a URL, preferring a directory
// match when a table is supplied.
func NewResourceLocator(url string, dir Directory) (ResourceLocator, error) {
	for idx, base := range dir {
		if len(url) >= len(base) && url[:len(base)] == base {
			body := append([]byte{idx}, url[len(base):]...)
			return ResourceLocator{Protocol: ProtocolDirectory, Body: body}, nil
		}
	}
	switch {
	case len(url) > 7 && url[:7] == "http://":
		return ResourceLocator{Protocol: ProtocolHTTP, Body: []byte(url[7:])}, nil
	case len(url) > 8 && url[:8] == "https://":
		return ResourceLocator{Protocol: ProtocolHTTPS, Body: []byte(url[8:])}, nil
	case len(url) > 9 && url[:9] == "shared://":
		return ResourceLocator{Protocol: ProtocolShared, Body: []byte(url[9:])}, nil
	}
	return ResourceLocator{}, fmt.Errorf("unsupported locator url %q", url)
}
