// Package tls provides the self-signed certificate used by the notary's
// own local HTTPS API listener. This is unrelated to the MPC-TLS session
// the notary observes on behalf of a client — it only secures the
// /session, /notarize and /verify endpoints against a local attacker on
// the same machine.
package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	// ServerKeySize is the RSA key size for the listener certificate.
	ServerKeySize = 2048

	// ServerCertValidityDays is the validity period for the listener
	// certificate; it is regenerated automatically once expired.
	ServerCertValidityDays = 397
)

// LoadOrCreateServerCert loads the notary listener's certificate and key
// from dir, generating and persisting a new self-signed pair if none
// exists or the existing one has expired.
func LoadOrCreateServerCert(dir, host string) (*tls.Certificate, error) {
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	if cert, err := loadServerCert(certPath, keyPath); err == nil {
		return cert, nil
	}

	cert, certPEM, keyPEM, err := createServerCert(host)
	if err != nil {
		return nil, fmt.Errorf("creating server certificate: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating cert directory: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("writing server cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing server key: %w", err)
	}

	return cert, nil
}

func loadServerCert(certPath, keyPath string) (*tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing server keypair: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing server certificate: %w", err)
	}
	if time.Now().After(leaf.NotAfter) {
		return nil, fmt.Errorf("server certificate expired at %s", leaf.NotAfter)
	}

	return &cert, nil
}

func createServerCert(host string) (*tls.Certificate, []byte, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, ServerKeySize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generating private key: %w", err)
	}

	serial, err := generateRandomSerial()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   host,
			Organization: []string{"notaryd"},
		},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              time.Now().AddDate(0, 0, ServerCertValidityDays),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host, "localhost"}
		template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("assembling keypair: %w", err)
	}

	return &cert, certPEM, keyPEM, nil
}

// generateRandomSerial generates a cryptographically random serial number.
func generateRandomSerial() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	serial.Add(serial, big.NewInt(1))
	return serial, nil
}
