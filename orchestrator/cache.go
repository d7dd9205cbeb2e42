// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrator

import (
	"sync"

	"github.com/InCOD3-VICTOR/sigcheck/returncode"
)

// analysisCache maps a normalized module path to the ReturnCode already
// computed for it, so repeated modules (a DLL loaded into many
// processes) are not re-verified. Exclusively owned by the Orchestrator;
// guarded by a mutex so callers MAY parallelize across modules per §5.
type analysisCache struct {
	mu      sync.Mutex
	entries map[string]returncode.Result
}

func newAnalysisCache() *analysisCache {
	return &analysisCache{entries: make(map[string]returncode.Result)}
}

func (c *analysisCache) get(path string) (returncode.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[path]
	return r, ok
}

func (c *analysisCache) put(path string, r returncode.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = r
}
