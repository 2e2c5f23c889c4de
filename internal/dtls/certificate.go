package dtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// certificateCommonName and certificateValidity match spec §4.1: a fresh
// self-signed ECDSA P-256 certificate good for one year.
const (
	certificateCommonName = "ffmpeg.org"
	certificateValidity   = 365 * 24 * time.Hour
)

// Identity is the local DTLS key material: a self-signed certificate and
// its SHA-256 fingerprint, rendered for SDP as upper-hex bytes joined by
// colons.
type Identity struct {
	Certificate tls.Certificate
	Fingerprint string
}

// GenerateIdentity creates a fresh ECDSA P-256 key and a self-signed
// certificate over it, per spec §4.1.
func GenerateIdentity() (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("dtls: generate key: %w", err)
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, fmt.Errorf("dtls: generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA1,
		SerialNumber:       serial,
		Subject:            pkix.Name{CommonName: certificateCommonName},
		NotBefore:          now,
		NotAfter:            now.Add(certificateValidity),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("dtls: create certificate: %w", err)
	}

	return &Identity{
		Certificate: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  priv,
		},
		Fingerprint: fingerprint(der),
	}, nil
}

// fingerprint renders the SHA-256 digest of the DER certificate as
// upper-hex octets joined by colons, per spec's GLOSSARY entry.
func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
