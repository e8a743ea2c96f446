package uhdrbake

import (
	"bytes"
	"encoding/binary"
)

const (
	mpfNumPictures = 2
	mpfTagCount    = 3
	mpfTagSize     = 12
	mpfHeaderSize  = 8 // byte order, magic, first IFD offset

	mpfTypeLong      = 0x4
	mpfTypeUndefined = 0x7

	mpfVersionTag        = 0xB000
	mpfNumberOfImagesTag = 0xB001
	mpfEntryTag          = 0xB002
	mpfEntrySize         = 16

	mpfAttrFormatJpeg  = 0x0000000
	mpfAttrTypePrimary = 0x030000
)

var (
	mpfSig       = []byte{'M', 'P', 'F', 0}
	mpfBigEndian = []byte{0x4D, 0x4D, 0x00, 0x2A}
	mpfVersion   = []byte{'0', '1', '0', '0'}
)

// MPFEntry is a 16 byte MP Entry record.
// Offset is relative to the TIFF header of the MPF segment; the first image has offset 0.
type MPFEntry struct {
	Attribute  uint32
	Size       uint32
	Offset     uint32
	Dependent1 uint16
	Dependent2 uint16
}

// MPFInfo is the decoded MP Index IFD.
type MPFInfo struct {
	Order          binary.ByteOrder
	NumberOfImages uint32
	Entries        []MPFEntry
}

// PrimarySize is the size of the first image.
func (m *MPFInfo) PrimarySize() uint32 {
	return m.Entries[0].Size
}

// SecondarySize is the size of the second image.
func (m *MPFInfo) SecondarySize() uint32 {
	return m.Entries[1].Size
}

// SecondaryOffset is the second image offset relative to the MPF TIFF header.
func (m *MPFInfo) SecondaryOffset() uint32 {
	return m.Entries[1].Offset
}

// MPFSize is the length of BuildMPF output, signature included.
func MPFSize() int {
	return len(mpfSig) + mpfHeaderSize + 2 + mpfTagCount*mpfTagSize + 4 + mpfNumPictures*mpfEntrySize
}

// BuildMPF renders a big-endian two-picture MPF APP2 payload, "MPF\0" signature included.
func BuildMPF(primaryLen, secondarySize, secondaryOffset uint32) []byte {
	be := binary.BigEndian
	buf := make([]byte, 0, MPFSize())

	buf = append(buf, mpfSig...)
	buf = append(buf, mpfBigEndian...)
	buf = be.AppendUint32(buf, mpfHeaderSize)

	buf = be.AppendUint16(buf, mpfTagCount)

	buf = be.AppendUint16(buf, mpfVersionTag)
	buf = be.AppendUint16(buf, mpfTypeUndefined)
	buf = be.AppendUint32(buf, uint32(len(mpfVersion)))
	buf = append(buf, mpfVersion...)

	buf = be.AppendUint16(buf, mpfNumberOfImagesTag)
	buf = be.AppendUint16(buf, mpfTypeLong)
	buf = be.AppendUint32(buf, 1)
	buf = be.AppendUint32(buf, mpfNumPictures)

	buf = be.AppendUint16(buf, mpfEntryTag)
	buf = be.AppendUint16(buf, mpfTypeUndefined)
	buf = be.AppendUint32(buf, mpfEntrySize*mpfNumPictures)
	buf = be.AppendUint32(buf, mpfHeaderSize+2+mpfTagCount*mpfTagSize+4)

	// Next IFD.
	buf = be.AppendUint32(buf, 0)

	buf = be.AppendUint32(buf, mpfAttrFormatJpeg|mpfAttrTypePrimary)
	buf = be.AppendUint32(buf, primaryLen)
	buf = be.AppendUint32(buf, 0)
	buf = be.AppendUint16(buf, 0)
	buf = be.AppendUint16(buf, 0)

	buf = be.AppendUint32(buf, mpfAttrFormatJpeg)
	buf = be.AppendUint32(buf, secondarySize)
	buf = be.AppendUint32(buf, secondaryOffset)
	buf = be.AppendUint16(buf, 0)
	buf = be.AppendUint16(buf, 0)

	return buf
}

// ParseMPF decodes an MPF APP2 payload starting with the "MPF\0" signature.
func ParseMPF(payload []byte) (*MPFInfo, error) {
	if !bytes.HasPrefix(payload, mpfSig) {
		return nil, malformedf("mpf signature missing")
	}
	tiff := payload[len(mpfSig):]
	if len(tiff) < mpfHeaderSize {
		return nil, malformedf("mpf tiff header truncated")
	}

	info := &MPFInfo{}
	switch {
	case tiff[0] == 'M' && tiff[1] == 'M':
		info.Order = binary.BigEndian
	case tiff[0] == 'I' && tiff[1] == 'I':
		info.Order = binary.LittleEndian
	default:
		return nil, malformedf("mpf byte order %q invalid", tiff[:2])
	}
	order := info.Order
	if order.Uint16(tiff[2:4]) != 0x002A {
		return nil, malformedf("mpf tiff magic invalid")
	}

	ifd, ok := span(tiff, int64(order.Uint32(tiff[4:8])), 2)
	if !ok {
		return nil, malformedf("mpf ifd offset out of range")
	}
	ifdPos := int64(order.Uint32(tiff[4:8])) + 2
	tagCount := int64(order.Uint16(ifd))

	var (
		entryCount  uint32
		entryOffset int64 = -1
		entryInline []byte
	)
	for i := int64(0); i < tagCount; i++ {
		tag, ok := span(tiff, ifdPos+i*mpfTagSize, mpfTagSize)
		if !ok {
			return nil, malformedf("mpf ifd truncated at tag %d", i)
		}
		switch order.Uint16(tag[0:2]) {
		case mpfNumberOfImagesTag:
			info.NumberOfImages = order.Uint32(tag[8:12])
		case mpfEntryTag:
			entryCount = order.Uint32(tag[4:8])
			if entryCount <= 4 {
				entryInline = tag[8:12]
			} else {
				entryOffset = int64(order.Uint32(tag[8:12]))
			}
		}
	}

	n := int64(entryCount / mpfEntrySize)
	if n < mpfNumPictures {
		return nil, malformedf("mpf has %d entries, want at least %d", n, mpfNumPictures)
	}
	entries := entryInline
	if entries == nil {
		size, ok := checkedMul(n, int64(mpfEntrySize))
		if !ok {
			return nil, malformedf("mpf entry size overflow")
		}
		if entries, ok = span(tiff, entryOffset, size); !ok {
			return nil, malformedf("mpf entries out of range (offset %d, %d entries)", entryOffset, n)
		}
	}

	info.Entries = make([]MPFEntry, 0, n)
	for i := int64(0); i < n; i++ {
		e := entries[i*mpfEntrySize : (i+1)*mpfEntrySize]
		info.Entries = append(info.Entries, MPFEntry{
			Attribute:  order.Uint32(e[0:4]),
			Size:       order.Uint32(e[4:8]),
			Offset:     order.Uint32(e[8:12]),
			Dependent1: order.Uint16(e[12:14]),
			Dependent2: order.Uint16(e[14:16]),
		})
	}
	return info, nil
}
