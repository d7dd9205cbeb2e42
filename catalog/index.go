// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package catalog implements §4.7's Catalog Index: given a directory of
// Windows .cat files, answer whether a digest was ever embedded in one
// of them.
package catalog

import (
	"os"
	"path/filepath"
	"sort"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/InCOD3-VICTOR/sigcheck/internal/log"
	"github.com/InCOD3-VICTOR/sigcheck/pe"
)

// Index is a scanned snapshot of every digest embedded in the .cat files
// of one directory, built once and queried many times.
type Index struct {
	digests map[string]struct{} // key: algorithm + ":" + hex(digest)
	logger  *log.Helper
}

// Open scans every *.cat file directly under dir (sorted lexicographically
// for deterministic iteration order, per Testable Property 3: "catalog
// hit determinism... independent of file order") and collects every
// digest pattern ScanDigests finds in each, the same pattern §4.5 uses
// for embedded signatures.
func Open(dir string, logger *log.Helper) (*Index, error) {
	if logger == nil {
		logger = log.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".cat" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	idx := &Index{digests: make(map[string]struct{}), logger: logger}

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := idx.scanFile(path); err != nil {
			logger.Warnf("skipping unreadable catalog %s: %v", path, err)
			continue
		}
	}

	return idx, nil
}

func (idx *Index) scanFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer data.Unmap()

	for _, entry := range pe.ScanDigests(data) {
		idx.digests[key(entry)] = struct{}{}
	}
	return nil
}

func key(entry pe.DigestEntry) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 2+2*len(entry.Digest))
	buf[0] = byte('0' + int(entry.Algorithm))
	buf[1] = ':'
	for i, b := range entry.Digest {
		buf[2+2*i] = hextable[b>>4]
		buf[2+2*i+1] = hextable[b&0xf]
	}
	return string(buf)
}

// Contains reports whether digest (computed with algo) appears in any
// scanned catalog file.
func (idx *Index) Contains(algo pe.Algorithm, digest []byte) bool {
	_, ok := idx.digests[key(pe.DigestEntry{Algorithm: algo, Digest: digest})]
	return ok
}
