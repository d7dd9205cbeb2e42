// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package cms

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewVerifierEmptyCADirFallsBackToSystemPool(t *testing.T) {
	v, err := NewVerifier("")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if v == nil || v.roots == nil {
		t.Fatal("expected a non-nil verifier with a root pool")
	}
}

func TestNewVerifierIgnoresNonCertFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not a cert"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.crt"), []byte("not actually a certificate"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	v, err := NewVerifier(dir)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if v == nil {
		t.Fatal("expected a non-nil verifier")
	}
}

func TestNewVerifierMissingDirErrors(t *testing.T) {
	_, err := NewVerifier(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error for a missing CA directory")
	}
}

func TestVerifyRejectsUnparseableBlob(t *testing.T) {
	v, err := NewVerifier("")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if _, _, err := v.Verify([]byte("not a PKCS#7 SignedData blob")); err == nil {
		t.Fatal("expected an error parsing a non-PKCS#7 blob")
	}
}

// TestShellVerifyAlwaysRemovesTempFile is Testable Property 5: the
// scratch file ShellVerify writes is gone after the call returns,
// whether or not the verification itself (or even the subprocess)
// succeeded.
func TestShellVerifyAlwaysRemovesTempFile(t *testing.T) {
	before, _ := filepath.Glob(filepath.Join(os.TempDir(), "sigcheck-cms-*.p7"))

	_, _, _ = ShellVerify([]byte("arbitrary bytes, not a real signature"), "")

	after, _ := filepath.Glob(filepath.Join(os.TempDir(), "sigcheck-cms-*.p7"))
	if len(after) > len(before) {
		t.Fatalf("temp file leaked: before=%v after=%v", before, after)
	}
}
