// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package cms implements §4.6's CMS Verifier: cryptographic verification
// of the PKCS#7 SignedData envelope embedded in a PE's Security
// directory, against a CA trust store supplied by configuration.
package cms

import (
	"crypto/x509"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.mozilla.org/pkcs7"
)

// SpcPeImageDataOID is the ASN.1 content type identifying an
// Authenticode signature over a PE, per the GLOSSARY.
var SpcPeImageDataOID = []int{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}

// Verifier verifies PKCS#7 SignedData blobs against a directory of
// trusted root certificates (PEM or DER .crt files), generalizing
// saferwall-pe's loadSystemRoots from a hardcoded certutil sync target
// to an arbitrary, configured CA directory.
type Verifier struct {
	roots *x509.CertPool
}

// NewVerifier loads every *.crt / *.pem / *.der file directly under caDir into a
// trust pool. An empty caDir falls back to the host's system pool.
func NewVerifier(caDir string) (*Verifier, error) {
	if caDir == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		return &Verifier{roots: pool}, nil
	}

	entries, err := os.ReadDir(caDir)
	if err != nil {
		return nil, fmt.Errorf("cms: reading CA directory %s: %w", caDir, err)
	}

	roots := x509.NewCertPool()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".crt" && ext != ".pem" && ext != ".der" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(caDir, e.Name()))
		if err != nil {
			continue
		}
		if ok := roots.AppendCertsFromPEM(data); ok {
			continue
		}
		if crt, err := x509.ParseCertificate(data); err == nil {
			roots.AddCert(crt)
		}
	}

	return &Verifier{roots: roots}, nil
}

// Verify parses signedData as a PKCS#7 SignedData blob and verifies its
// chain of trust, returning a human-readable verdict normalized to a
// sentence (first letter capitalized) per §4.6 and the design note in
// §9 that the verdict string is "surfaced verbatim... to preserve
// operator familiarity".
func (v *Verifier) Verify(signedData []byte) (verdict string, ok bool, err error) {
	p7, err := pkcs7.Parse(signedData)
	if err != nil {
		return "", false, fmt.Errorf("cms: parsing SignedData: %w", err)
	}

	if verr := p7.VerifyWithChain(v.roots); verr != nil {
		return capitalize(verr.Error()), false, nil
	}
	return "Signature verified", true, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ShellVerify is the documented escape hatch for environments where the
// native verifier above can't be trusted to match a platform's own CMS
// stack: it mirrors the original's `openssl smime -verify` subprocess
// call. signedData is written to a scoped temp file that is always
// removed, success or failure, matching the temp-file cleanup guarantee
// of Testable Property 5.
func ShellVerify(signedData []byte, caDir string) (verdict string, ok bool, err error) {
	f, err := os.CreateTemp("", "sigcheck-cms-*.p7")
	if err != nil {
		return "", false, fmt.Errorf("cms: creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(signedData); err != nil {
		f.Close()
		return "", false, fmt.Errorf("cms: writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("cms: closing temp file: %w", err)
	}

	args := []string{"smime", "-verify", "-inform", "DER", "-in", path, "-noverify"}
	if caDir != "" {
		args = []string{"smime", "-verify", "-inform", "DER", "-in", path, "-CApath", caDir}
	}

	out, runErr := exec.Command("openssl", args...).CombinedOutput()
	if runErr != nil {
		return capitalize(strings.TrimSpace(string(out))), false, nil
	}
	return "Signature verified", true, nil
}
