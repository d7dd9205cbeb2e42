// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package memimg

import "fmt"

// Assemble builds a zero-filled buffer of totalSize bytes and copies each
// span's bytes, read from provider, at its file offset. A span whose
// read fails (or returns fewer bytes than requested) leaves the
// corresponding range zero-filled and is reported as a hole rather than
// aborting the assembly — matching §4.1's "emit a warning and leave
// zeros" behavior.
//
// MemOffset is masked to 32 bits before the read, since upstream page
// enumeration can carry spurious high bits for what is really a 32-bit
// address.
func Assemble(provider PageProvider, spans []PageSpan, totalSize uint64, warn func(string)) (data []byte, isComplete bool) {
	buf := make([]byte, totalSize)
	complete := true

	for _, span := range spans {
		memOffset := span.MemOffset & 0xffffffff
		fileOffset := span.FileOffset
		length := span.Length

		if fileOffset >= totalSize {
			complete = false
			continue
		}
		end := fileOffset + length
		if end > totalSize {
			end = totalSize
			length = end - fileOffset
		}

		chunk, err := provider.Read(memOffset, length)
		if err != nil {
			if warn != nil {
				warn(fmt.Sprintf("unreadable page at offset 0x%x: %v", memOffset, err))
			}
			complete = false
			continue
		}
		if uint64(len(chunk)) < length {
			complete = false
		}

		copy(buf[fileOffset:end], chunk)
	}

	return buf, complete
}
