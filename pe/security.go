// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

// WinCertificate is the 8-byte header preceding every attribute
// certificate entry in the Security directory (WIN_CERTIFICATE).
type WinCertificate struct {
	// Length is the size, in bytes, of the whole entry (header + blob).
	Length uint32

	// Revision is typically WinCertRevision2_0.
	Revision uint16

	// CertificateType is WinCertTypePKCSSignedData for Authenticode.
	CertificateType uint16
}

const (
	WinCertRevision1_0 = 0x0100
	WinCertRevision2_0 = 0x0200

	WinCertTypeX509           = 0x0001
	WinCertTypePKCSSignedData = 0x0002
)

// ExtractCertificates walks the (possibly dual-signed) chain of
// WIN_CERTIFICATE entries in the Security directory, 8-byte-aligned as
// the PE spec requires, returning the raw PKCS#7 SignedData blob of
// each entry. Ported from saferwall-pe's parseSecurityDirectory loop.
func ExtractCertificates(data []byte, l *Layout) ([][]byte, error) {
	if !l.HasCertificate() {
		return nil, ErrNoCertificate
	}

	var blobs [][]byte
	offset := l.CertFileOffset
	end := l.CertFileOffset + l.CertSize

	for offset < end {
		if uint64(offset)+8 > uint64(len(data)) {
			return blobs, ErrOutsideBoundary
		}
		length, err := readUint32(data, offset)
		if err != nil {
			return blobs, ErrOutsideBoundary
		}
		if length == 0 || uint64(offset)+uint64(length) > uint64(len(data)) {
			return blobs, ErrSecurityDataDirInvalid
		}

		blobs = append(blobs, data[offset+8:offset+length])

		next := offset + length
		next = ((next + 8 - 1) / 8) * 8
		if next <= offset || next >= end {
			break
		}
		offset = next
	}

	if len(blobs) == 0 {
		return nil, ErrSecurityDataDirInvalid
	}
	return blobs, nil
}

// DigestEntry is one (algorithm, digest) pair recovered from a
// SpcIndirectDataContent's messageDigest field by ScanDigests.
type DigestEntry struct {
	Algorithm Algorithm
	Digest    []byte
}

// Digest algorithm OIDs as they appear DER-encoded, matching
// sigcheck.py's CERTIFICATE_REGEX OID groups.
var (
	oidMD5    = []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x02, 0x05}
	oidSHA1   = []byte{0x2b, 0x0e, 0x03, 0x02, 0x1a}
	oidSHA256 = []byte{0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01}
)

func oidToAlgorithm(oid []byte) (Algorithm, bool) {
	switch {
	case bytesEqual(oid, oidMD5):
		return MD5, true
	case bytesEqual(oid, oidSHA1):
		return SHA1, true
	case bytesEqual(oid, oidSHA256):
		return SHA256, true
	default:
		return 0, false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ScanDigests implements the deterministic byte pattern of spec §4.5: it
// is not a general ASN.1 parser, it only recognizes the exact shape DER
// encodes a SpcIndirectDataContent.messageDigest in —
//
//	30 LEN 30 LEN 06 OIDLEN <OID 5..9 bytes> 05 00 04 HASHLEN <digest>
//
// — and returns every non-overlapping occurrence in data, in the order
// they appear. A single embedded signature normally yields exactly one
// entry; a catalog file yields one per listed binary.
func ScanDigests(data []byte) []DigestEntry {
	var entries []DigestEntry

	for i := 0; i+6 <= len(data); i++ {
		if data[i] != 0x30 || data[i+2] != 0x30 || data[i+4] != 0x06 {
			continue
		}
		oidLen := int(data[i+5])
		if oidLen < 5 || oidLen > 9 {
			continue
		}
		oidStart := i + 6
		oidEnd := oidStart + oidLen
		if oidEnd+4 > len(data) {
			continue
		}
		if data[oidEnd] != 0x05 || data[oidEnd+1] != 0x00 || data[oidEnd+2] != 0x04 {
			continue
		}
		algo, ok := oidToAlgorithm(data[oidStart:oidEnd])
		if !ok {
			continue
		}
		hashSize := int(data[oidEnd+3])
		digestStart := oidEnd + 4
		digestEnd := digestStart + hashSize
		if digestEnd > len(data) {
			continue
		}

		entries = append(entries, DigestEntry{
			Algorithm: algo,
			Digest:    append([]byte(nil), data[digestStart:digestEnd]...),
		})
		i = digestEnd - 1 // resume scanning past this match, non-overlapping
	}

	return entries
}

// ExtractDigest returns the first digest pattern found in a
// WIN_CERTIFICATE blob, or ErrPartialCertificate if the deterministic
// pattern never matched (the certificate is present but unparseable).
func ExtractDigest(certBytes []byte) (DigestEntry, error) {
	entries := ScanDigests(certBytes)
	if len(entries) == 0 {
		return DigestEntry{}, ErrPartialCertificate
	}
	return entries[0], nil
}
