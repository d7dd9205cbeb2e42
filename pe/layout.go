// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

// Layout holds every offset the Authenticode pipeline needs, computed
// directly from fixed field positions rather than through a generic PE
// struct decoder. This mirrors the Microsoft Authenticode specification's
// own description of the PE header, and matches the offset-only approach
// saferwall-pe's ntheader.go/security.go take when locating the checksum
// and certificate table fields.
type Layout struct {
	// NTHeaderOffset is e_lfanew, the file offset of 'PE\0\0'.
	NTHeaderOffset uint32

	// Is64 is true when the optional header magic is PE32+ (0x20B).
	Is64 bool

	// NumberOfSections is read from the COFF file header.
	NumberOfSections uint16

	// Sections is the parsed section table, ordered as on disk.
	Sections []ImageSectionHeader

	// ChecksumOffset is the file offset of OptionalHeader.CheckSum.
	ChecksumOffset uint32

	// SecurityDirOffset is the file offset of the Security (certificate)
	// data directory entry within the optional header.
	SecurityDirOffset uint32

	// CertFileOffset / CertSize are the values stored at SecurityDirOffset:
	// for the certificate directory alone, VirtualAddress is actually a
	// file offset, not an RVA.
	CertFileOffset uint32
	CertSize       uint32

	// SizeOfHeaders and SizeOfImage come straight from the optional header.
	SizeOfHeaders uint32
	SizeOfImage   uint32

	// ImageBaseOffset is the file offset of OptionalHeader.ImageBase,
	// 4 bytes wide for PE32 and 8 bytes wide for PE32+.
	ImageBaseOffset uint32
	ImageBase       uint64

	// BaseRelocRVA / BaseRelocSize are the data directory entry describing the relocation
	// table (RVA + size), used by the Relocation Rebaser.
	BaseRelocRVA  uint32
	BaseRelocSize uint32
}

// TotalSize returns the reconstructed on-disk size per §4.2:
// SizeOfHeaders plus the sum of every section's SizeOfRawData, plus the
// certificate directory size (the embedded signature trails the last
// section in a signed PE).
func (l *Layout) TotalSize() uint64 {
	total := uint64(l.SizeOfHeaders)
	for _, s := range l.Sections {
		total += uint64(s.SizeOfRawData)
	}
	total += uint64(l.CertSize)
	return total
}

// HasCertificate reports whether the security directory entry is non-empty.
func (l *Layout) HasCertificate() bool {
	return l.CertFileOffset != 0 && l.CertSize != 0
}

// ParseLayout walks the DOS header, NT header, and section table of data,
// extracting only the offsets later pipeline stages need. It deliberately
// does not build a full PE object model: the Authenticode pipeline only
// ever needs these handful of fields, and computing them directly avoids
// trusting a richer parse of a buffer that may be only partially resident.
func ParseLayout(data []byte) (*Layout, error) {
	if len(data) < 0x40 {
		return nil, ErrInvalidPESize
	}

	magic, err := readUint16(data, 0)
	if err != nil || magic != ImageDOSSignature {
		return nil, ErrDOSMagicNotFound
	}

	ntOffset, err := readUint32(data, 0x3c)
	if err != nil {
		return nil, ErrInvalidElfanewValue
	}
	if ntOffset < 4 || uint64(ntOffset)+24 > uint64(len(data)) {
		return nil, ErrInvalidElfanewValue
	}

	sig, err := readUint32(data, ntOffset)
	if err != nil || sig != ImageNTSignature {
		return nil, ErrImageNtSignatureNotFound
	}

	numberOfSections, err := readUint16(data, ntOffset+4+2)
	if err != nil {
		return nil, ErrOutsideBoundary
	}

	sizeOfOptionalHeader, err := readUint16(data, ntOffset+4+16)
	if err != nil {
		return nil, ErrOutsideBoundary
	}

	optHeaderOffset := ntOffset + 4 + 20 // sizeof(IMAGE_FILE_HEADER) == 20
	magic16, err := readUint16(data, optHeaderOffset)
	if err != nil {
		return nil, ErrImageNtOptionalHeaderMagicNotFound
	}

	var is64 bool
	switch magic16 {
	case ImageNtOptionalHeader64Magic:
		is64 = true
	case ImageNtOptionalHeader32Magic:
		is64 = false
	default:
		return nil, ErrImageNtOptionalHeaderMagicNotFound
	}

	l := &Layout{
		NTHeaderOffset:   ntOffset,
		Is64:             is64,
		NumberOfSections: numberOfSections,
		ChecksumOffset:   ntOffset + 0x58,
	}

	if is64 {
		l.ImageBaseOffset = optHeaderOffset + 0x18
		base, _ := readUint64(data, l.ImageBaseOffset)
		l.ImageBase = base
		l.SizeOfImage, _ = readUint32(data, optHeaderOffset+0x38)
		l.SizeOfHeaders, _ = readUint32(data, optHeaderOffset+0x3c)
		l.SecurityDirOffset = ntOffset + 0xA8
	} else {
		l.ImageBaseOffset = optHeaderOffset + 0x1c
		base, _ := readUint32(data, l.ImageBaseOffset)
		l.ImageBase = uint64(base)
		l.SizeOfHeaders, _ = readUint32(data, optHeaderOffset+0x3c)
		l.SizeOfImage, _ = readUint32(data, optHeaderOffset+0x38)
		l.SecurityDirOffset = ntOffset + 0x98
	}

	if uint64(l.SecurityDirOffset)+8 <= uint64(len(data)) {
		l.CertFileOffset, _ = readUint32(data, l.SecurityDirOffset)
		l.CertSize, _ = readUint32(data, l.SecurityDirOffset+4)
	}

	baseRelocDirOffset := l.SecurityDirOffset + uint32(8*(ImageDirectoryEntryBaseReloc-ImageDirectoryEntryCertificate))
	if uint64(baseRelocDirOffset)+8 <= uint64(len(data)) {
		l.BaseRelocRVA, _ = readUint32(data, baseRelocDirOffset)
		l.BaseRelocSize, _ = readUint32(data, baseRelocDirOffset+4)
	}

	sectionTableOffset := optHeaderOffset + uint32(sizeOfOptionalHeader)
	for i := uint16(0); i < numberOfSections; i++ {
		sec, err := unpackSectionHeader(data, sectionTableOffset+uint32(i)*40)
		if err != nil {
			break
		}
		l.Sections = append(l.Sections, sec)
	}

	return l, nil
}

// RVAToOffset translates a relative virtual address into a file offset
// using the section whose virtual range contains it, falling back to an
// identity mapping when the RVA lies within the headers (no section
// covers it), the same fallback saferwall-pe's GetOffsetFromRva applies.
func (l *Layout) RVAToOffset(rva uint32) (uint32, bool) {
	for _, s := range l.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return rva - s.VirtualAddress + s.PointerToRawData, true
		}
	}
	if int(rva) < int(l.SizeOfHeaders) {
		return rva, true
	}
	return 0, false
}
