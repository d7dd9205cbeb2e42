// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

// ImageDOSHeader represents the DOS stub every PE begins with. Only the
// two fields the NT header lookup depends on are kept resident.
type ImageDOSHeader struct {
	// Magic is the 'MZ' (or legacy 'ZM') signature.
	Magic uint16

	// AddressOfNewEXEHeader (e_lfanew) is the file offset of the NT header.
	AddressOfNewEXEHeader uint32
}

// ImageFileHeader is the COFF header (IMAGE_FILE_HEADER) immediately
// following the PE signature.
type ImageFileHeader struct {
	Machine              ImageFileHeaderMachineType
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// DataDirectory is one entry of the sixteen-entry IMAGE_DATA_DIRECTORY
// array carried by the optional header.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// ImageSectionHeader is one 40-byte row of the section table.
type ImageSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// readUint16/32/64 read little-endian integers from a buffer, returning
// ErrOutsideBoundary rather than panicking on truncated input. This
// mirrors saferwall-pe's File.ReadUint{16,32,64} helpers, generalized
// to operate on a plain slice instead of a memory-mapped file.
func readUint16(data []byte, offset uint32) (uint16, error) {
	if uint64(offset)+2 > uint64(len(data)) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(data[offset:]), nil
}

func readUint32(data []byte, offset uint32) (uint32, error) {
	if uint64(offset)+4 > uint64(len(data)) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(data[offset:]), nil
}

func readUint64(data []byte, offset uint32) (uint64, error) {
	if uint64(offset)+8 > uint64(len(data)) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(data[offset:]), nil
}

func writeUint32(data []byte, offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(data[offset:], v)
}

func writeUint64(data []byte, offset uint32, v uint64) {
	binary.LittleEndian.PutUint64(data[offset:], v)
}

func unpackSectionHeader(data []byte, offset uint32) (ImageSectionHeader, error) {
	var sec ImageSectionHeader
	if uint64(offset)+40 > uint64(len(data)) {
		return sec, ErrOutsideBoundary
	}
	copy(sec.Name[:], data[offset:offset+8])
	sec.VirtualSize, _ = readUint32(data, offset+8)
	sec.VirtualAddress, _ = readUint32(data, offset+12)
	sec.SizeOfRawData, _ = readUint32(data, offset+16)
	sec.PointerToRawData, _ = readUint32(data, offset+20)
	sec.PointerToRelocations, _ = readUint32(data, offset+24)
	sec.PointerToLineNumbers, _ = readUint32(data, offset+28)
	v, _ := readUint16(data, offset+32)
	sec.NumberOfRelocations = v
	v, _ = readUint16(data, offset+34)
	sec.NumberOfLineNumbers = v
	sec.Characteristics, _ = readUint32(data, offset+36)
	return sec, nil
}
