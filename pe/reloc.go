// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

// Relocation entry types. Only the two types real PE linkers emit for
// x86/x64/ARM64 images matter to the rebaser; the rest are accepted and
// skipped rather than rejected, as saferwall-pe's reloc.go does.
const (
	ImageRelBasedAbsolute = 0
	ImageRelBasedHighLow  = 3
	ImageRelBasedDir64    = 10
)

// relocationEntry is one 16-bit (type:4, offset:12) record inside a base
// relocation block.
type relocationEntry struct {
	rva  uint32 // block VirtualAddress + Offset
	kind uint8
}

// MaxRelocEntries bounds how many relocation records a single rebase will
// walk, matching saferwall-pe's MaxDefaultRelocEntriesCount guard against
// malware-supplied blocks that claim an absurd SizeOfBlock.
const MaxRelocEntries = 0x10000

// parseRelocations walks the base relocation directory, translating each
// block's RVA to a file offset via the section table the same way
// saferwall-pe's parseRelocDirectory does, and flattening every block's
// entries into one slice.
func parseRelocations(data []byte, l *Layout) ([]relocationEntry, error) {
	if l.BaseRelocRVA == 0 || l.BaseRelocSize == 0 {
		return nil, ErrNoRelocations
	}

	var entries []relocationEntry
	rva := l.BaseRelocRVA
	end := l.BaseRelocRVA + l.BaseRelocSize
	count := 0

	for rva < end {
		offset, ok := l.RVAToOffset(rva)
		if !ok {
			return nil, ErrInvalidBaseRelocVA
		}

		blockVA, err := readUint32(data, offset)
		if err != nil {
			return nil, ErrInvalidBaseRelocVA
		}
		sizeOfBlock, err := readUint32(data, offset+4)
		if err != nil {
			return nil, ErrInvalidRelocBlockSize
		}
		if blockVA > l.SizeOfImage {
			return nil, ErrInvalidBaseRelocVA
		}
		if sizeOfBlock > l.SizeOfImage || sizeOfBlock < 8 {
			return nil, ErrInvalidRelocBlockSize
		}

		numEntries := (sizeOfBlock - 8) / 2
		for i := uint32(0); i < numEntries; i++ {
			raw, err := readUint16(data, offset+8+i*2)
			if err != nil {
				break
			}
			kind := uint8(raw >> 12)
			entryOffset := uint32(raw & 0x0fff)
			if kind == ImageRelBasedAbsolute {
				continue
			}
			entries = append(entries, relocationEntry{rva: blockVA + entryOffset, kind: kind})
			count++
			if count > MaxRelocEntries {
				return entries, nil
			}
		}

		if sizeOfBlock == 0 {
			break
		}
		rva += sizeOfBlock
	}

	return entries, nil
}

// Rebase patches every relocation entry to reflect a new ImageBase,
// returning a new buffer (the input is left untouched). This undoes what
// the Windows loader did when it mapped an ImageSectionObject at
// oldBase: the memory-resident bytes already have oldBase's relocations
// applied, so patching toward newBase re-derives what the file would
// look like if it had been linked at newBase, matching sigcheck.py's
// validate_image_section / pefile.relocate_image round-trip.
func Rebase(data []byte, l *Layout, newBase uint64) ([]byte, error) {
	entries, err := parseRelocations(data, l)
	if err != nil {
		return nil, err
	}

	delta := int64(newBase) - int64(l.ImageBase)
	out := make([]byte, len(data))
	copy(out, data)

	for _, e := range entries {
		offset, ok := l.RVAToOffset(e.rva)
		if !ok {
			continue
		}
		switch e.kind {
		case ImageRelBasedHighLow:
			v, err := readUint32(out, offset)
			if err != nil {
				continue
			}
			writeUint32(out, offset, uint32(int64(v)+delta))
		case ImageRelBasedDir64:
			v, err := readUint64(out, offset)
			if err != nil {
				continue
			}
			writeUint64(out, offset, uint64(int64(v)+delta))
		}
	}

	if l.Is64 {
		writeUint64(out, l.ImageBaseOffset, newBase)
	} else {
		writeUint32(out, l.ImageBaseOffset, uint32(newBase))
	}

	return out, nil
}
