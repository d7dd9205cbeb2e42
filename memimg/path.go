// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package memimg

import "strings"

// deviceVolumePrefixes enumerates the small number of HarddiskVolume
// indices a real image realistically carries. The source's heuristic
// treats this as a regex class (`HarddiskVolume[0-9]`); matching any one
// of these literal digits reproduces that intent without compiling a
// pattern over binary-tinged path data (see Open Question #1 in
// SPEC_FULL.md — a literal prefix match, not escape-sequence soup).
var deviceVolumePrefixes = func() []string {
	prefixes := make([]string, 10)
	for i := 0; i < 10; i++ {
		prefixes[i] = `\Device\HarddiskVolume` + string(rune('0'+i))
	}
	return prefixes
}()

// NormalizePath rewrites a process/module path into the device-path
// form file objects are keyed by, applying the three literal
// substitutions §6 specifies. The real volume index is not knowable
// without consulting the image's volume table, so all three rewrites
// deliberately leave the index off rather than guess one;
// MatchesWindowsDir accepts both the digit-bearing form a real device
// path carries and this bare form NormalizePath produces.
func NormalizePath(path string) string {
	switch {
	case hasPrefixFold(path, `\SystemRoot`):
		return `\Device\HarddiskVolume\Windows` + path[len(`\SystemRoot`):]
	case hasPrefixFold(path, `\??\C:`):
		return `\Device\HarddiskVolume` + path[len(`\??\C:`):]
	case hasPrefixFold(path, `C:`):
		return `\Device\HarddiskVolume` + path[len(`C:`):]
	default:
		return path
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

// MatchesWindowsDir reports whether path is (after normalization) a file
// under some `\Device\HarddiskVolumeN\Windows` — the prefix the
// catalog-maybe heuristic of §4.8's VALIDATE_PARTIAL path checks,
// matched case-insensitively and on a literal prefix per Open Question
// #1 rather than the source's broken escaped-regex intent. The bare,
// digit-less `\Device\HarddiskVolume\Windows` form is accepted too,
// since that's what NormalizePath itself produces for a `C:`/`\??\C:`
// path whose real volume index isn't known.
func MatchesWindowsDir(path string) bool {
	path = NormalizePath(path)
	if hasPrefixFold(path, `\SystemRoot`) {
		return true
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, strings.ToLower(`\Device\HarddiskVolume\Windows`)) {
		return true
	}
	for _, prefix := range deviceVolumePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix+`\Windows`)) {
			return true
		}
	}
	return false
}

// ModulesForProcess returns the modules loaded into pid's address space,
// applying the dll/sys selection the original CLI exposes. When wantDLL
// is false (the default process path, run without `--dll`), only the
// process's main image is returned: the source's get_pe_modules returns
// from inside its enumeration loop after the first module in that
// branch, so only the main executable is ever yielded there. Preserved
// verbatim per Open Question #3 rather than "fixed" to enumerate every
// module, since no caller has been shown to rely on the fuller list.
func ModulesForProcess(provider PageProvider, pid uint64, wantDLL bool) ([]Module, error) {
	mods, err := provider.ModulesForProcess(pid)
	if err != nil {
		return nil, err
	}
	if wantDLL {
		return mods, nil
	}
	for _, m := range mods {
		return []Module{m}, nil
	}
	return nil, nil
}
