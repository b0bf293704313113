package tls

import (
	"crypto/x509"
	"testing"
)

func TestLoadOrCreateServerCertGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()

	cert, err := LoadOrCreateServerCert(dir, "notary.local")
	if err != nil {
		t.Fatalf("LoadOrCreateServerCert: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parsing leaf: %v", err)
	}
	if leaf.Subject.CommonName != "notary.local" {
		t.Errorf("CommonName = %q, want notary.local", leaf.Subject.CommonName)
	}

	reloaded, err := LoadOrCreateServerCert(dir, "notary.local")
	if err != nil {
		t.Fatalf("second LoadOrCreateServerCert: %v", err)
	}
	if string(reloaded.Certificate[0]) != string(cert.Certificate[0]) {
		t.Errorf("expected reload to reuse the persisted certificate, got a fresh one")
	}
}

func TestCreateServerCertUsesDNSNameForHostname(t *testing.T) {
	cert, _, _, err := createServerCert("api.notary.example")
	if err != nil {
		t.Fatalf("createServerCert: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parsing leaf: %v", err)
	}
	if len(leaf.DNSNames) == 0 || leaf.DNSNames[0] != "api.notary.example" {
		t.Errorf("DNSNames = %v, want [api.notary.example ...]", leaf.DNSNames)
	}
}
