// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/InCOD3-VICTOR/sigcheck/memimg"
	"github.com/InCOD3-VICTOR/sigcheck/returncode"
)

// fixtureManifest is the on-disk shape of a memory image adapter's
// manifest.json: this package is the thin "PageProvider adapter" §2
// describes, translating a memory-forensics framework's own session
// object into the minimal interface the orchestrator consumes. The
// manifest format here targets an offline-extracted image (a directory
// holding one raw page dump, pages.bin, plus this index) so the CLI is runnable without a
// live memory-analysis framework attached; a production build swaps
// this adapter out for one wrapping that framework directly.
type fixtureManifest struct {
	Processes map[string]fixtureProcess  `json:"processes"` // pid(string) -> process info
	Drivers   []memimg.Module            `json:"drivers"`
	Files     map[string][]fixtureSpan   `json:"files"`   // path -> spans, as a DataSectionObject
	Modules   map[string][]memimg.Module `json:"modules"` // pid(string) -> loaded modules
}

// fixtureProcess is the manifest's on-disk shape of one enumerate_processes()
// entry: a process whose PEB isn't present can't be walked for modules, and
// whether that's ALREADY_TERMINATED or NOT_PEB depends on exit_time.
type fixtureProcess struct {
	ImageName  string `json:"image_name"`
	PebPresent bool   `json:"peb_present"`
	ExitTime   bool   `json:"exit_time"`
}

type fixtureSpan struct {
	MemOffset  uint64 `json:"mem_offset"`
	FileOffset uint64 `json:"file_offset"`
	Length     uint64 `json:"length"`
}

// fixtureProvider implements memimg.PageProvider by reading page bytes
// back out of pages.bin in the same directory the manifest lives in, at
// the memory offset each read asks for.
type fixtureProvider struct {
	dir      string
	manifest fixtureManifest
}

func openImage(dir string) (memimg.PageProvider, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("reading manifest.json: %w", err)
	}
	var m fixtureManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest.json: %w", err)
	}
	return &fixtureProvider{dir: dir, manifest: m}, nil
}

func (p *fixtureProvider) EnumerateFileObjects(pathHint string) ([]string, error) {
	var out []string
	for path := range p.manifest.Files {
		if pathHint == "" || strings.Contains(strings.ToLower(path), strings.ToLower(pathHint)) {
			out = append(out, path)
		}
	}
	return out, nil
}

func (p *fixtureProvider) Dump(path string) ([]memimg.SectionSnapshot, error) {
	spans, ok := p.manifest.Files[path]
	if !ok {
		return nil, fmt.Errorf("no file object for %s", path)
	}
	out := make([]memimg.PageSpan, len(spans))
	for i, s := range spans {
		out[i] = memimg.PageSpan{MemOffset: s.MemOffset, FileOffset: s.FileOffset, Length: s.Length}
	}
	return []memimg.SectionSnapshot{{Kind: memimg.DataSectionObject, Spans: out}}, nil
}

func (p *fixtureProvider) Read(offset uint64, length uint64) ([]byte, error) {
	f, err := os.Open(filepath.Join(p.dir, "pages.bin"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (p *fixtureProvider) EnumerateProcesses() ([]memimg.ProcessInfo, error) {
	out := make([]memimg.ProcessInfo, 0, len(p.manifest.Processes))
	for pidStr, proc := range p.manifest.Processes {
		pid, err := strconv.ParseUint(pidStr, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, memimg.ProcessInfo{
			Pid:        pid,
			ImageName:  proc.ImageName,
			PebPresent: proc.PebPresent,
			ExitTime:   proc.ExitTime,
		})
	}
	return out, nil
}

func (p *fixtureProvider) EnumerateDrivers() ([]memimg.Module, error) {
	return p.manifest.Drivers, nil
}

func (p *fixtureProvider) ModulesForProcess(pid uint64) ([]memimg.Module, error) {
	return p.manifest.Modules[strconv.FormatUint(pid, 10)], nil
}

// moduleRef is one unit of work for the orchestrator loop in main.go. A
// ref with Terminal set already carries its final ReturnCode (e.g. a
// process whose PEB is gone) and skips orchestrator.Analyze entirely.
type moduleRef struct {
	Path     string
	Pid      uint64
	Terminal *returncode.Code
}

func enumerateModules(provider memimg.PageProvider, wantSys bool) ([]moduleRef, error) {
	var refs []moduleRef

	if wantSys {
		drivers, err := provider.EnumerateDrivers()
		if err != nil {
			return nil, err
		}
		for _, d := range drivers {
			refs = append(refs, moduleRef{Path: d.Path, Pid: 0})
		}
		return refs, nil
	}

	procs, err := provider.EnumerateProcesses()
	if err != nil {
		return nil, err
	}
	for _, proc := range procs {
		if !proc.PebPresent {
			code := returncode.NotPEB
			if proc.ExitTime {
				code = returncode.AlreadyTerminated
			}
			refs = append(refs, moduleRef{Path: proc.ImageName, Pid: proc.Pid, Terminal: &code})
			continue
		}

		mods, err := memimg.ModulesForProcess(provider, proc.Pid, wantDLL)
		if err != nil {
			continue
		}
		for _, m := range mods {
			refs = append(refs, moduleRef{Path: m.Path, Pid: proc.Pid})
		}
	}
	return refs, nil
}
