// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrator

import (
	"encoding/binary"

	"github.com/InCOD3-VICTOR/sigcheck/pe"
)

// imageReloc is one requested base-relocation fixup, RVA-addressed.
type imageReloc struct {
	rva  uint32
	kind uint8
}

// buildImage assembles a minimal well-formed PE32+ image, the same shape
// the pe package's own test fixture builds, duplicated here (unexported
// there) so the orchestrator's state machine can be exercised end to end
// without depending on sample binaries the retrieval pack doesn't ship.
func buildImage(sectionData []byte, certPayload []byte, badChecksum bool) []byte {
	return buildImageWithRelocs(sectionData, certPayload, badChecksum, nil)
}

func buildImageWithRelocs(sectionData []byte, certPayload []byte, badChecksum bool, relocs []imageReloc) []byte {
	const (
		ntOffset  = 0x80
		optOffset = ntOffset + 4 + 20
		secTable  = optOffset + 0xF0
		secVA     = 0x1000
	)

	reserve := uint32(len(sectionData))
	if len(relocs) > 0 {
		reserve += 64
	}
	secSize := align(reserve, 0x200)
	if secSize == 0 {
		secSize = 0x200
	}
	headersEnd := secTable + 40
	sizeOfHeaders := align(uint32(headersEnd), 0x200)

	buf := make([]byte, sizeOfHeaders+secSize)

	binary.LittleEndian.PutUint16(buf[0:], pe.ImageDOSSignature)
	binary.LittleEndian.PutUint32(buf[0x3c:], ntOffset)

	binary.LittleEndian.PutUint32(buf[ntOffset:], pe.ImageNTSignature)
	binary.LittleEndian.PutUint16(buf[ntOffset+4:], uint16(pe.ImageFileMachineAMD64))
	binary.LittleEndian.PutUint16(buf[ntOffset+6:], 1)
	binary.LittleEndian.PutUint16(buf[ntOffset+20:], uint16(secTable-optOffset))

	binary.LittleEndian.PutUint16(buf[optOffset:], pe.ImageNtOptionalHeader64Magic)
	binary.LittleEndian.PutUint64(buf[optOffset+0x18:], 0x140000000)
	binary.LittleEndian.PutUint32(buf[optOffset+0x38:], secVA+secSize)
	binary.LittleEndian.PutUint32(buf[optOffset+0x3c:], sizeOfHeaders)

	secOffset := uint32(secTable)
	copy(buf[secOffset:secOffset+8], []byte(".text\x00\x00\x00"))
	binary.LittleEndian.PutUint32(buf[secOffset+8:], secSize)
	binary.LittleEndian.PutUint32(buf[secOffset+12:], secVA)
	binary.LittleEndian.PutUint32(buf[secOffset+16:], secSize)
	binary.LittleEndian.PutUint32(buf[secOffset+20:], sizeOfHeaders)

	copy(buf[sizeOfHeaders:], sectionData)

	if len(relocs) > 0 {
		relocRVA := align(secVA+uint32(len(sectionData)), 4)
		relocOffset := sizeOfHeaders + (relocRVA - secVA)

		blockSize := uint32(8 + 2*len(relocs))
		binary.LittleEndian.PutUint32(buf[relocOffset:], secVA)
		binary.LittleEndian.PutUint32(buf[relocOffset+4:], blockSize)
		for i, r := range relocs {
			entry := uint16(r.kind)<<12 | uint16(r.rva-secVA)
			binary.LittleEndian.PutUint16(buf[relocOffset+8+uint32(i)*2:], entry)
		}

		baseRelocDirOffset := ntOffset + 0xA8 + uint32(8*(pe.ImageDirectoryEntryBaseReloc-pe.ImageDirectoryEntryCertificate))
		binary.LittleEndian.PutUint32(buf[baseRelocDirOffset:], relocRVA)
		binary.LittleEndian.PutUint32(buf[baseRelocDirOffset+4:], blockSize)
	}

	if certPayload != nil {
		certOffset := uint32(len(buf))
		certLen := align(uint32(8+len(certPayload)), 8)
		out := make([]byte, certOffset+certLen)
		copy(out, buf)
		binary.LittleEndian.PutUint32(out[certOffset:], uint32(8+len(certPayload)))
		binary.LittleEndian.PutUint16(out[certOffset+4:], pe.WinCertRevision2_0)
		binary.LittleEndian.PutUint16(out[certOffset+6:], pe.WinCertTypePKCSSignedData)
		copy(out[certOffset+8:], certPayload)
		buf = out

		secDirOffset := ntOffset + 0xA8
		binary.LittleEndian.PutUint32(buf[secDirOffset:], certOffset)
		binary.LittleEndian.PutUint32(buf[secDirOffset+4:], 8+uint32(len(certPayload)))
	}

	layout, err := pe.ParseLayout(buf)
	if err != nil {
		panic(err)
	}
	if badChecksum {
		binary.LittleEndian.PutUint32(buf[layout.ChecksumOffset:], 0xdeadbeef)
	} else {
		binary.LittleEndian.PutUint32(buf[layout.ChecksumOffset:], pe.Checksum(buf, layout.ChecksumOffset))
	}
	return buf
}

func align(v, to uint32) uint32 {
	if v%to == 0 {
		return v
	}
	return v + (to - v%to)
}

var oidSHA1 = []byte{0x2b, 0x0e, 0x03, 0x02, 0x1a}

func encodeDigestPattern(oid, digest []byte) []byte {
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
