package adc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Format is the layout of one conversion result in the DMA pool.
type Format uint8

const (
	// FormatTypeA is a 2 byte result: data[0:12], channel[12:16]. Unit 1 only.
	FormatTypeA Format = iota + 1
	// FormatTypeB is a 4 byte result: data[0:12], channel[13:17], unit[17].
	FormatTypeB
)

func (f Format) String() string {
	switch f {
	case FormatTypeA:
		return "type_a"
	case FormatTypeB:
		return "type_b"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat parses "type_a" or "type_b".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "type_a", "type1", "a":
		return FormatTypeA, nil
	case "type_b", "type2", "b":
		return FormatTypeB, nil
	}
	return 0, newError(InvalidArgument, "parse format", fmt.Sprintf("unknown output format %q", s))
}

// Size returns the result size in bytes, or 0 for an unknown format.
func (f Format) Size() int {
	switch f {
	case FormatTypeA:
		return 2
	case FormatTypeB:
		return 4
	}
	return 0
}

const dataMask = 0x0fff

// Frame is one decoded conversion result.
type Frame struct {
	Unit    UnitID
	Channel uint8
	Raw     uint16
}

// EncodeFrame writes fr into dst in format f and returns the number of bytes written.
func EncodeFrame(dst []byte, f Format, fr Frame) (int, error) {
	n := f.Size()
	if n == 0 || len(dst) < n {
		return 0, newError(InvalidArgument, "encode frame", fmt.Sprintf("%v needs %d bytes, have %d", f, n, len(dst)))
	}
	switch f {
	case FormatTypeA:
		if fr.Unit != Unit1 || fr.Channel > 0x0f {
			return 0, newError(InvalidArgument, "encode frame", fmt.Sprintf("%v/%d not representable in %v", fr.Unit, fr.Channel, f))
		}
		binary.LittleEndian.PutUint16(dst, fr.Raw&dataMask|uint16(fr.Channel)<<12)
	case FormatTypeB:
		if fr.Channel > 0x0f {
			return 0, newError(InvalidArgument, "encode frame", fmt.Sprintf("channel %d not representable", fr.Channel))
		}
		v := uint32(fr.Raw&dataMask) | uint32(fr.Channel)<<13
		if fr.Unit == Unit2 {
			v |= 1 << 17
		}
		binary.LittleEndian.PutUint32(dst, v)
	}
	return n, nil
}

// DecodeFrame decodes the single result at the start of src.
func DecodeFrame(src []byte, f Format) (Frame, error) {
	if n := f.Size(); n == 0 || len(src) < n {
		return Frame{}, newError(InvalidArgument, "decode frame", fmt.Sprintf("short %v result: %d bytes", f, len(src)))
	}
	switch f {
	case FormatTypeA:
		v := binary.LittleEndian.Uint16(src)
		return Frame{Unit: Unit1, Channel: uint8(v >> 12), Raw: v & dataMask}, nil
	default:
		v := binary.LittleEndian.Uint32(src)
		fr := Frame{Unit: Unit1, Channel: uint8(v>>13) & 0x0f, Raw: uint16(v) & dataMask}
		if v&(1<<17) != 0 {
			fr.Unit = Unit2
		}
		return fr, nil
	}
}

// DecodeFrames appends every result in buf to dst. buf must hold whole results.
func DecodeFrames(dst []Frame, buf []byte, f Format) ([]Frame, error) {
	n := f.Size()
	if n == 0 {
		return dst, newError(InvalidArgument, "decode frames", fmt.Sprintf("unknown format %v", f))
	}
	if len(buf)%n != 0 {
		return dst, newError(InvalidArgument, "decode frames", fmt.Sprintf("%d bytes is not a multiple of %d", len(buf), n))
	}
	for off := 0; off < len(buf); off += n {
		fr, _ := DecodeFrame(buf[off:off+n], f)
		dst = append(dst, fr)
	}
	return dst, nil
}
