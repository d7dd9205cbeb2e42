// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package orchestrator drives §4.8's Validation Orchestrator: the main
// state machine that turns one module's memory-resident pages into a
// single ReturnCode, wiring together the pe, memimg, cms, catalog and
// config packages.
package orchestrator

import (
	"path/filepath"
	"strings"

	"github.com/InCOD3-VICTOR/sigcheck/catalog"
	"github.com/InCOD3-VICTOR/sigcheck/cms"
	"github.com/InCOD3-VICTOR/sigcheck/config"
	"github.com/InCOD3-VICTOR/sigcheck/internal/log"
	"github.com/InCOD3-VICTOR/sigcheck/memimg"
	"github.com/InCOD3-VICTOR/sigcheck/pe"
	"github.com/InCOD3-VICTOR/sigcheck/returncode"
)

// Orchestrator holds everything a single run of module analysis needs:
// the read-only PageProvider, the injected Config (replacing the
// original's cyclic module-wide plugin state), a catalog index, a CMS
// verifier, and the AnalysisCache.
type Orchestrator struct {
	provider memimg.PageProvider
	cfg      config.Config
	cat      *catalog.Index
	verifier *cms.Verifier
	cache    *analysisCache
	logger   *log.Helper
}

// New wires an Orchestrator from its collaborators. cat and verifier may
// be nil (catalog lookups always miss, CMS verification always fails)
// so tests can exercise the state machine without real filesystem
// dependencies.
func New(provider memimg.PageProvider, cfg config.Config, cat *catalog.Index, verifier *cms.Verifier, logger *log.Helper) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		provider: provider,
		cfg:      cfg,
		cat:      cat,
		verifier: verifier,
		cache:    newAnalysisCache(),
		logger:   logger,
	}
}

// Analyze runs the full state machine for one module, consulting and
// populating the AnalysisCache so a module seen twice (e.g. a DLL
// shared by several processes) is verified exactly once (Testable
// Property 4).
func (o *Orchestrator) Analyze(path string, pid uint64) returncode.Result {
	norm := strings.ToLower(memimg.NormalizePath(path))
	if cached, ok := o.cache.get(norm); ok {
		return cached
	}

	result := o.analyzeUncached(path, pid)
	o.cache.put(norm, result)
	return result
}

func (o *Orchestrator) analyzeUncached(path string, pid uint64) returncode.Result {
	result := returncode.Result{Module: path, Pid: pid}

	objects, err := o.provider.EnumerateFileObjects(path)
	if err != nil || len(objects) == 0 {
		o.logger.Warnf("no file object for %s: %v", path, err)
		result.Code = returncode.FileObjectError
		return result
	}

	snapshots, err := o.provider.Dump(path)
	if err != nil || len(snapshots) == 0 {
		o.logger.Warnf("no file object for %s: %v", path, err)
		result.Code = returncode.FileObjectError
		return result
	}

	snapshot := pickSnapshot(snapshots)
	if snapshot == nil {
		result.Code = returncode.FileObjectError
		return result
	}

	data, complete := memimg.Assemble(o.provider, snapshot.Spans, estimateSize(snapshot.Spans), func(msg string) {
		o.logger.Warnf("%s: %s", path, msg)
	})

	if complete {
		result.Code, result.Detail = o.validateFull(path, snapshot.Kind, data)
	} else {
		result.Code, result.Detail = o.validatePartial(path, snapshot.Kind, data)
	}
	return result
}

// pickSnapshot prefers ImageSectionObject, then DataSectionObject.
// SharedCacheMap is "not supported — treated as unusable" per §3.
func pickSnapshot(snapshots []memimg.SectionSnapshot) *memimg.SectionSnapshot {
	var dataSection *memimg.SectionSnapshot
	for i := range snapshots {
		s := &snapshots[i]
		switch s.Kind {
		case memimg.ImageSectionObject:
			return s
		case memimg.DataSectionObject:
			if dataSection == nil {
				dataSection = s
			}
		}
	}
	return dataSection
}

func estimateSize(spans []memimg.PageSpan) uint64 {
	var max uint64
	for _, s := range spans {
		if end := s.FileOffset + s.Length; end > max {
			max = end
		}
	}
	return max
}

// validateFull implements VALIDATE_FULL(kind, bytes).
func (o *Orchestrator) validateFull(path string, kind memimg.SectionKind, data []byte) (returncode.Code, string) {
	layout, err := pe.ParseLayout(data)
	if err != nil {
		return returncode.PERebuiltFailed, ""
	}

	rebased := false
	switch kind {
	case memimg.ImageSectionObject:
		if !pe.VerifyChecksum(data, layout) {
			newData, ok := o.tryRebase(data, layout, extensionOf(path))
			if !ok {
				return returncode.PERebuiltFailed, ""
			}
			data = newData
			layout, err = pe.ParseLayout(data)
			if err != nil {
				return returncode.PERebuiltFailed, ""
			}
			rebased = true
		}
	case memimg.DataSectionObject:
		total := layout.TotalSize()
		if total > 0 && total < uint64(len(data)) {
			data = data[:total]
		}
		if !pe.VerifyChecksum(data, layout) {
			return returncode.PEChecksumMismatch, ""
		}
	}

	return o.verifyPE(data, layout, rebased)
}

// tryRebase implements §4.4: iterate candidate bases for the image's
// extension until one relocates the buffer to a checksum-valid state.
func (o *Orchestrator) tryRebase(data []byte, layout *pe.Layout, ext string) ([]byte, bool) {
	candidates := o.cfg.FrequentBases[ext]

	for _, base := range candidates {
		if !layout.Is64 && base > 0xFFFFFFFF {
			continue
		}
		rebased, err := pe.Rebase(data, layout, base)
		if err != nil {
			continue
		}
		newLayout, err := pe.ParseLayout(rebased)
		if err != nil {
			continue
		}
		if pe.VerifyChecksum(rebased, newLayout) {
			return rebased, true
		}
	}
	return nil, false
}

// verifyPE implements VERIFY_PE(bytes). rebased indicates this buffer
// came through the ImageSectionObject rebase path, which changes which
// "mismatch" ReturnCode variant (plain vs _OR_INCORRECT_IMAGEBASE) is
// reported on failure.
func (o *Orchestrator) verifyPE(data []byte, layout *pe.Layout, rebased bool) (returncode.Code, string) {
	if layout.HasCertificate() {
		return o.verifyEmbeddedSignature(data, layout, rebased)
	}
	return o.verifyCatalogOnly(data, layout, rebased)
}

func (o *Orchestrator) verifyEmbeddedSignature(data []byte, layout *pe.Layout, rebased bool) (returncode.Code, string) {
	blobs, err := pe.ExtractCertificates(data, layout)
	if err != nil || len(blobs) == 0 {
		return returncode.PartialCertificate, ""
	}

	entry, err := pe.ExtractDigest(blobs[0])
	if err != nil {
		return returncode.PartialCertificate, ""
	}

	digest := pe.Digest(data, entry.Algorithm, layout)
	if !bytesEqual(digest, entry.Digest) {
		if rebased {
			return returncode.AuthenticodeSignatureMismatchOrIncorrectImageBase, ""
		}
		return returncode.AuthenticodeSignatureMismatch, ""
	}

	if o.verifier == nil {
		return returncode.SignedFileNotVerified, ""
	}
	verdict, ok, err := o.verifier.Verify(blobs[0])
	if err != nil || !ok {
		return returncode.SignedFileNotVerified, verdict
	}
	return returncode.EmbeddedSignatureVerified, verdict
}

func (o *Orchestrator) verifyCatalogOnly(data []byte, layout *pe.Layout, rebased bool) (returncode.Code, string) {
	digest := pe.Digest(data, pe.SHA1, layout)
	if o.cat != nil && o.cat.Contains(pe.SHA1, digest) {
		return returncode.CatalogSigned, ""
	}
	if rebased {
		return returncode.NotSignedOrIncorrectImageBase, ""
	}
	return returncode.NotSigned, ""
}

// validatePartial implements VALIDATE_PARTIAL(kind, bytes): the
// last-page heuristic over whatever pages actually assembled.
func (o *Orchestrator) validatePartial(path string, kind memimg.SectionKind, data []byte) (returncode.Code, string) {
	layout, err := pe.ParseLayout(data)
	if err != nil {
		return returncode.PartialContentPEDataError, ""
	}

	if layout.HasCertificate() {
		switch kind {
		case memimg.DataSectionObject:
			blobs, err := pe.ExtractCertificates(data, layout)
			if err != nil || len(blobs) == 0 {
				return returncode.ContentSignedNotVerified, ""
			}
			if o.verifier == nil {
				return returncode.PartialContentVerified, ""
			}
			verdict, _, _ := o.verifier.Verify(blobs[0])
			return returncode.PartialContentVerified, verdict
		case memimg.ImageSectionObject:
			return returncode.ContentSignedNotVerified, ""
		}
	}

	if memimg.MatchesWindowsDir(path) {
		return returncode.PartialContentMaybeCatalogSigned, ""
	}
	return returncode.PartialContentNotSigned, ""
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

// extensionOf returns the lowercase extension (without the dot) of a
// module path, used to pick the FrequentBaseTable column.
func extensionOf(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
