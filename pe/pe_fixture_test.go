// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

// fixtureOptions configures buildPE64, the synthetic PE64 builder every
// test in this package shares. No sample binaries shipped with the
// retrieval pack, so tests build minimal-but-valid images directly
// rather than depending on fixture files on disk.
type fixtureOptions struct {
	imageBase     uint64
	sectionData   []byte // raw bytes of the single .text section
	relocs        []fixtureReloc
	withCert      bool
	certPayload   []byte // the WIN_CERTIFICATE's bCertificate content
	badChecksum   bool
}

type fixtureReloc struct {
	rva  uint32 // RVA of the 32/64-bit value to patch
	kind uint8  // ImageRelBasedHighLow or ImageRelBasedDir64
}

const (
	fixtureNTOffset  = 0x80
	fixtureOptOffset = fixtureNTOffset + 4 + 20
	fixtureSecTable  = fixtureOptOffset + 0xF0 // optional header64 size, room to spare
	fixtureSecVA     = 0x1000
	fixtureSecRaw    = 0x400
)

// buildPE64 assembles a minimal well-formed PE32+ image: DOS header, NT
// header, one executable section holding opts.sectionData plus however
// many relocation entries opts.relocs describes, and optionally a
// Security directory entry wrapping opts.certPayload in a single
// WIN_CERTIFICATE. The returned buffer's PE checksum is made to match
// Checksum() unless opts.badChecksum asks for a deliberate mismatch.
func buildPE64(opts fixtureOptions) []byte {
	reserve := uint32(len(opts.sectionData))
	if len(opts.relocs) > 0 {
		reserve += 64 // slack for the relocation block this function appends
	}
	secSize := align(reserve, 0x200)
	if secSize == 0 {
		secSize = 0x200
	}

	headersEnd := fixtureSecTable + 40 // one section header row
	sizeOfHeaders := align(uint32(headersEnd), 0x200)

	buf := make([]byte, sizeOfHeaders+secSize)

	// DOS header.
	binary.LittleEndian.PutUint16(buf[0:], ImageDOSSignature)
	binary.LittleEndian.PutUint32(buf[0x3c:], fixtureNTOffset)

	// NT signature + COFF file header.
	binary.LittleEndian.PutUint32(buf[fixtureNTOffset:], ImageNTSignature)
	binary.LittleEndian.PutUint16(buf[fixtureNTOffset+4:], uint16(ImageFileMachineAMD64))
	binary.LittleEndian.PutUint16(buf[fixtureNTOffset+6:], 1) // NumberOfSections
	binary.LittleEndian.PutUint16(buf[fixtureNTOffset+20:], uint16(fixtureSecTable-fixtureOptOffset))

	// Optional header64.
	binary.LittleEndian.PutUint16(buf[fixtureOptOffset:], ImageNtOptionalHeader64Magic)
	base := opts.imageBase
	if base == 0 {
		base = 0x140000000
	}
	binary.LittleEndian.PutUint64(buf[fixtureOptOffset+0x18:], base)
	binary.LittleEndian.PutUint32(buf[fixtureOptOffset+0x38:], fixtureSecVA+secSize) // SizeOfImage
	binary.LittleEndian.PutUint32(buf[fixtureOptOffset+0x3c:], sizeOfHeaders)         // SizeOfHeaders

	// Section table: one .text section.
	secOffset := fixtureSecTable
	copy(buf[secOffset:secOffset+8], []byte(".text\x00\x00\x00"))
	binary.LittleEndian.PutUint32(buf[secOffset+8:], secSize)          // VirtualSize
	binary.LittleEndian.PutUint32(buf[secOffset+12:], fixtureSecVA)    // VirtualAddress
	binary.LittleEndian.PutUint32(buf[secOffset+16:], secSize)         // SizeOfRawData
	binary.LittleEndian.PutUint32(buf[secOffset+20:], sizeOfHeaders)   // PointerToRawData

	copy(buf[sizeOfHeaders:], opts.sectionData)

	// Relocation table, placed at the start of the section's free space
	// right after sectionData, if any relocations were requested.
	if len(opts.relocs) > 0 {
		relocRVA := fixtureSecVA + uint32(len(opts.sectionData))
		relocRVA = align(relocRVA, 4)
		relocOffset := sizeOfHeaders + (relocRVA - fixtureSecVA)

		blockSize := uint32(8 + 2*len(opts.relocs))
		binary.LittleEndian.PutUint32(buf[relocOffset:], fixtureSecVA) // block VA
		binary.LittleEndian.PutUint32(buf[relocOffset+4:], blockSize)
		for i, r := range opts.relocs {
			entry := uint16(r.kind)<<12 | uint16(r.rva-fixtureSecVA)
			binary.LittleEndian.PutUint16(buf[relocOffset+8+uint32(i)*2:], entry)
		}

		baseRelocDirOffset := fixtureNTOffset + 0xA8 + uint32(8*(ImageDirectoryEntryBaseReloc-ImageDirectoryEntryCertificate))
		binary.LittleEndian.PutUint32(buf[baseRelocDirOffset:], relocRVA)
		binary.LittleEndian.PutUint32(buf[baseRelocDirOffset+4:], blockSize)
	}

	if opts.withCert {
		certOffset := uint32(len(buf))
		certLen := align(uint32(8+len(opts.certPayload)), 8)
		out := make([]byte, certOffset+certLen)
		copy(out, buf)
		binary.LittleEndian.PutUint32(out[certOffset:], uint32(8+len(opts.certPayload)))
		binary.LittleEndian.PutUint16(out[certOffset+4:], WinCertRevision2_0)
		binary.LittleEndian.PutUint16(out[certOffset+6:], WinCertTypePKCSSignedData)
		copy(out[certOffset+8:], opts.certPayload)
		buf = out

		secDirOffset := fixtureNTOffset + 0xA8
		binary.LittleEndian.PutUint32(buf[secDirOffset:], certOffset)
		binary.LittleEndian.PutUint32(buf[secDirOffset+4:], 8+uint32(len(opts.certPayload)))
	}

	layout, err := ParseLayout(buf)
	if err != nil {
		panic(err)
	}
	if opts.badChecksum {
		binary.LittleEndian.PutUint32(buf[layout.ChecksumOffset:], 0xdeadbeef)
	} else {
		binary.LittleEndian.PutUint32(buf[layout.ChecksumOffset:], Checksum(buf, layout.ChecksumOffset))
	}

	return buf
}

func align(v, to uint32) uint32 {
	if v%to == 0 {
		return v
	}
	return v + (to - v%to)
}

// buildDigestPattern encodes the exact §4.5 byte pattern around digest,
// for tests that exercise ScanDigests/ExtractDigest directly without a
// full WIN_CERTIFICATE wrapper.
func buildDigestPattern(oid []byte, digest []byte) []byte {
	inner := make([]byte, 0, 4+len(oid)+4+len(digest))
	inner = append(inner, 0x06, byte(len(oid)))
	inner = append(inner, oid...)
	inner = append(inner, 0x05, 0x00, 0x04, byte(len(digest)))
	inner = append(inner, digest...)

	outer := make([]byte, 0, 4+len(inner))
	outer = append(outer, 0x30, byte(len(inner)))
	outer = append(outer, inner...)

	wrapped := make([]byte, 0, 4+len(outer))
	wrapped = append(wrapped, 0x30, byte(len(outer)))
	wrapped = append(wrapped, outer...)
	return wrapped
}
