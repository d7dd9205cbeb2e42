// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/InCOD3-VICTOR/sigcheck/catalog"
	"github.com/InCOD3-VICTOR/sigcheck/cms"
	"github.com/InCOD3-VICTOR/sigcheck/config"
	"github.com/InCOD3-VICTOR/sigcheck/internal/log"
	"github.com/InCOD3-VICTOR/sigcheck/orchestrator"
	"github.com/InCOD3-VICTOR/sigcheck/returncode"
)

var (
	catalogDir   string
	wantDLL      bool
	wantSys      bool
	caDir        string
	addressesDir string
	profile      string
)

func run(cmd *cobra.Command, args []string) error {
	if wantDLL && wantSys {
		return fmt.Errorf("--dll and --sys are mutually exclusive")
	}

	memoryImage := args[0]

	logger := log.Default()

	if catalogDir == "" {
		catalogDir = filepath.Join("catroot", profile)
	}

	cat, err := catalog.Open(catalogDir, logger)
	if err != nil {
		logger.Warnf("catalog directory %s unavailable: %v", catalogDir, err)
		cat = nil
	}

	verifier, err := cms.NewVerifier(caDir)
	if err != nil {
		logger.Warnf("CA trust store unavailable: %v", err)
		verifier = nil
	}

	cfg := config.Config{CatalogDir: catalogDir, CADir: caDir, ProfileTag: profile}
	if addressesDir != "" {
		bases, err := config.LoadFrequentBases(addressesDir, profile, func(msg string) { logger.Warn(msg) })
		if err != nil {
			logger.Warnf("addresses.json unavailable: %v", err)
		} else {
			cfg.FrequentBases = bases
		}
	}

	provider, err := openImage(memoryImage)
	if err != nil {
		return fmt.Errorf("opening memory image %s: %w", memoryImage, err)
	}

	orch := orchestrator.New(provider, cfg, cat, verifier, logger)

	kind := "process and DLLs"
	if wantSys {
		kind = "kernel drivers"
	}
	logger.Infof("validating %s against %s", kind, memoryImage)

	modules, err := enumerateModules(provider, wantSys)
	if err != nil {
		return fmt.Errorf("enumerating modules: %w", err)
	}

	exitCode := 0
	for _, m := range modules {
		var result returncode.Result
		if m.Terminal != nil {
			result = returncode.Result{Module: m.Path, Pid: m.Pid, Code: *m.Terminal}
		} else {
			result = orch.Analyze(m.Path, m.Pid)
		}
		fmt.Printf("%-60s pid=%-6d %-55s %s\n", m.Path, m.Pid, result.Code, result.Detail)
		if !result.Code.Success() && exitCode == 0 {
			exitCode = int(result.Code)
		}
	}

	os.Exit(exitCode)
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sigcheck",
		Short: "Validates Authenticode signatures on PEs reconstructed from a memory image",
		Long:  "sigcheck reconstructs PE images out of a physical memory snapshot and checks each one's Authenticode signature or catalog membership.",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&catalogDir, "catalog", "", "directory of .cat catalog files (default catroot/<profile>)")
	rootCmd.Flags().BoolVar(&wantDLL, "dll", false, "verify the target executable and its DLLs")
	rootCmd.Flags().BoolVar(&wantSys, "sys", false, "verify kernel modules instead of a process")
	rootCmd.Flags().StringVar(&caDir, "ca-dir", "", "CA trust store directory for CMS verification")
	rootCmd.Flags().StringVar(&addressesDir, "addresses", "", "path to addresses.json (FrequentBaseTable)")
	rootCmd.Flags().StringVar(&profile, "profile", "", "memory image profile tag")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
