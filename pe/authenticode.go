// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// Algorithm identifies one of the three digest algorithms Authenticode
// signatures in the wild use.
type Algorithm int

const (
	MD5 Algorithm = iota
	SHA1
	SHA256
)

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA256:
		return sha256.New()
	default:
		return sha1.New()
	}
}

func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA256:
		return "sha256"
	default:
		return "sha1"
	}
}

// Digest computes the Authenticode digest of data using algorithm,
// excluding the three ranges the Authenticode spec carves out: the
// CheckSum field, the Security directory entry itself, and (if present)
// the embedded WIN_CERTIFICATE blob. This is a direct port of
// saferwall-pe's File.AuthentihashExt range-exclusion algorithm, driven
// by the offsets a Layout carries instead of a reflected OptionalHeader.
// The bytes hashed are these four ranges:
//
//  1. data[0 .. ChecksumOffset]
//  2. data[ChecksumOffset+4 .. SecurityDirOffset]
//  3. data[SecurityDirOffset+8 .. CertFileOffset] (if a cert is present)
//  4. data[CertFileOffset+CertSize ..] (if a cert is present), or
//     data[SecurityDirOffset+8 ..] otherwise.
func Digest(data []byte, algo Algorithm, l *Layout) []byte {
	h := algo.New()

	write := func(start, end uint32) {
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		if start >= end {
			return
		}
		h.Write(data[start:end])
	}

	write(0, l.ChecksumOffset)
	write(l.ChecksumOffset+4, l.SecurityDirOffset)

	if l.HasCertificate() {
		write(l.SecurityDirOffset+8, l.CertFileOffset)
		write(l.CertFileOffset+l.CertSize, uint32(len(data)))
	} else {
		write(l.SecurityDirOffset+8, uint32(len(data)))
	}

	return h.Sum(nil)
}
