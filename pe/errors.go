// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "errors"

var (
	// ErrInvalidPESize is reported when the buffer is too small to hold a PE.
	ErrInvalidPESize = errors.New("not a PE file, smaller than tiny PE")

	// ErrDOSMagicNotFound is reported when the buffer does not start with MZ.
	ErrDOSMagicNotFound = errors.New("DOS header magic not found")

	// ErrInvalidElfanewValue is reported when e_lfanew falls outside the buffer.
	ErrInvalidElfanewValue = errors.New("invalid e_lfanew value, probably not a PE file")

	// ErrImageNtSignatureNotFound is reported when PE\0\0 is absent at e_lfanew.
	ErrImageNtSignatureNotFound = errors.New("PE signature not found at NT header offset")

	// ErrImageNtOptionalHeaderMagicNotFound is reported when the optional
	// header magic is neither PE32 nor PE32+.
	ErrImageNtOptionalHeaderMagicNotFound = errors.New("invalid optional header magic")

	// ErrOutsideBoundary is reported when a read would run past the buffer.
	ErrOutsideBoundary = errors.New("reading data outside boundary")

	// ErrOptionalHeaderTooSmall is reported when SizeOfHeaders can't
	// accommodate the fields Authenticode hashing depends on.
	ErrOptionalHeaderTooSmall = errors.New("optional header size is insufficient for authenticode")

	// ErrSecurityDataDirInvalid is reported when a WIN_CERTIFICATE entry in
	// the security directory has an implausible header.
	ErrSecurityDataDirInvalid = errors.New("invalid certificate header in security directory")

	// ErrNoCertificate is reported when the security directory is empty.
	ErrNoCertificate = errors.New("no certificate present in security directory")

	// ErrPartialCertificate is reported when a certificate is present but the
	// deterministic digest pattern (see ScanDigests) doesn't match it.
	ErrPartialCertificate = errors.New("embedded certificate incomplete")

	// ErrInvalidBaseRelocVA is reported when a base relocation block's
	// VirtualAddress lies outside the image.
	ErrInvalidBaseRelocVA = errors.New("base relocation VirtualAddress is outside of the image")

	// ErrInvalidRelocBlockSize is reported when a base relocation block's
	// SizeOfBlock is implausibly large.
	ErrInvalidRelocBlockSize = errors.New("base relocation SizeOfBlock too large")

	// ErrNoRelocations is reported when a rebase is attempted on an image
	// with no relocation table.
	ErrNoRelocations = errors.New("image has no relocation table")

	// ErrUnsupportedAlgorithm is reported when a digest algorithm OID isn't
	// one of md5, sha1, sha256.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)
