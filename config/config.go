// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package config carries the values the original plugin held as
// module-wide/class state into an explicit value injected into the
// orchestrator.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Config bundles every external input the orchestrator needs besides
// the PageProvider itself.
type Config struct {
	// CatalogDir is the directory of .cat files the Catalog Index scans,
	// defaulting to catroot/<ProfileTag> per the CLI surface in §6.
	CatalogDir string

	// CADir is the trust-anchor directory the CMS Verifier loads.
	CADir string

	// ProfileTag selects which entry of addresses.json to use.
	ProfileTag string

	// FrequentBases is keyed by file extension ("exe", "dll", "sys") to
	// an ordered list of candidate image bases, already resolved for
	// ProfileTag by LoadFrequentBases.
	FrequentBases map[string][]uint64
}

// addressesFile mirrors addresses.json's shape:
// { profile_tag: { "exe"|"dll"|"sys": [hex_base, ...] } }.
type addressesFile map[string]map[string][]string

// LoadFrequentBases reads an addresses.json file and returns the
// FrequentBaseTable entry for profile. If profile is absent, this warns
// (via warn, which may be nil) and falls back to the lexicographically
// first profile key in the file — a deterministic choice in place of
// the original's "whatever key iteration happened to land on last"
// behavior (Open Question #2).
func LoadFrequentBases(path string, profile string, warn func(string)) (map[string][]uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var file addressesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if len(file) == 0 {
		return nil, fmt.Errorf("config: %s has no profiles", path)
	}

	entry, ok := file[profile]
	if !ok {
		keys := make([]string, 0, len(file))
		for k := range file {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fallback := keys[0]
		if warn != nil {
			warn(fmt.Sprintf("profile %q not found in %s, falling back to %q", profile, path, fallback))
		}
		entry = file[fallback]
	}

	bases := make(map[string][]uint64, len(entry))
	for ext, hexBases := range entry {
		parsed := make([]uint64, 0, len(hexBases))
		for _, h := range hexBases {
			v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(h), "0x"), 16, 64)
			if err != nil {
				if warn != nil {
					warn(fmt.Sprintf("skipping unparseable base %q for %q/%q", h, profile, ext))
				}
				continue
			}
			parsed = append(parsed, v)
		}
		bases[ext] = parsed
	}

	return bases, nil
}
