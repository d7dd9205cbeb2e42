// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package memimg adapts a volatility-style memory image into the
// contiguous byte buffers the pe package expects, reconstructing a PE
// image from whatever pages of it are actually memory-resident.
package memimg

// PageSpan describes one contiguous run of bytes recoverable from a
// memory image: length bytes starting at MemOffset in the process's (or
// kernel's) virtual address space are backed by length bytes starting
// at FileOffset in the image file.
type PageSpan struct {
	MemOffset  uint64
	FileOffset uint64
	Length     uint64
}

// SectionKind distinguishes the three ways Windows can back a mapped
// region of memory, mirroring the _SECTION_OBJECT/_CONTROL_AREA kinds a
// memory analysis framework exposes.
type SectionKind int

const (
	ImageSectionObject SectionKind = iota
	DataSectionObject
	SharedCacheMap
)

func (k SectionKind) String() string {
	switch k {
	case ImageSectionObject:
		return "ImageSectionObject"
	case DataSectionObject:
		return "DataSectionObject"
	case SharedCacheMap:
		return "SharedCacheMap"
	default:
		return "unknown"
	}
}

// SectionSnapshot is one candidate mapping a PageProvider has found for
// a given file object: which kind of section backs it, and the spans of
// memory actually resident for it.
type SectionSnapshot struct {
	Kind  SectionKind
	Spans []PageSpan
}

// Module is one entry from a process's (or the kernel's) loaded-module
// list: a mapped image with a guessed or known load address and path.
type Module struct {
	Pid       uint64 // 0 for kernel/driver modules
	Path      string
	BaseAddr  uint64
	ImageSize uint64
}

// ProcessInfo is one entry from a memory image's process list: enough to
// decide whether its module list can even be walked. A process whose PEB
// is gone (a terminated process whose _EPROCESS is still resident, or one
// that never fully initialized) cannot yield a module list, and whether
// that's ALREADY_TERMINATED or NOT_PEB depends on ExitTime.
type ProcessInfo struct {
	Pid        uint64
	ImageName  string
	PebPresent bool
	ExitTime   bool
}

// PageProvider is the external boundary the orchestrator drives: every
// method reads from, or enumerates, a single memory image without
// knowing anything about PE structure or Authenticode semantics. A real
// implementation wraps a framework such as Volatility/Rekall; tests
// supply an in-memory fake.
type PageProvider interface {
	// EnumerateFileObjects returns every file object in the image whose
	// path matches pathHint (a case-insensitive substring, or "" for all).
	EnumerateFileObjects(pathHint string) ([]string, error)

	// Dump returns every SectionSnapshot backing the given file path,
	// across however many section object kinds the image retains.
	Dump(path string) ([]SectionSnapshot, error)

	// Read returns up to length bytes of physical/virtual memory starting
	// at offset, zero-padded if the underlying store is sparse at the
	// tail. A short read (fewer bytes than length, with no error) means
	// the image truly ends there.
	Read(offset uint64, length uint64) ([]byte, error)

	// EnumerateProcesses lists every process in the image, including
	// whether each one's PEB is present and whether it has already exited.
	EnumerateProcesses() ([]ProcessInfo, error)

	// EnumerateDrivers lists every loaded kernel-mode module.
	EnumerateDrivers() ([]Module, error)

	// ModulesForProcess lists the modules mapped into pid's address space.
	ModulesForProcess(pid uint64) ([]Module, error)
}
