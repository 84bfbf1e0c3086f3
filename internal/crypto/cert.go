package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"time"
)

// GenTLScert creates a self-signed certificate for the https listener.
// LocalSend peers do not validate the chain; they compare the certificate
// fingerprint against the one learned during discovery.
func GenTLScert() (tls.Certificate, error) {
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "LocalSend User",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	privkey, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return tls.Certificate{}, err
	}
	pubkey := privkey.Public()

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, pubkey, privkey)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPrivKeyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privkey),
	})

	certPem := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certBytes,
	})

	cert, err := tls.X509KeyPair(certPem, certPrivKeyPem)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, err
	}

	return cert, nil
}

// LoadOrGenTLScert loads a previously generated key pair from disk,
// generating and saving a fresh one when either file is missing or broken.
func LoadOrGenTLScert(privkeyFile string, certFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, privkeyFile)
	if err == nil {
		cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err == nil {
			return cert, nil
		}
	}

	cert, err = GenTLScert()
	if err != nil {
		return tls.Certificate{}, err
	}

	certPem := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})
	if err := os.WriteFile(certFile, certPem, 0o600); err != nil {
		return tls.Certificate{}, err
	}

	if privkey, ok := cert.PrivateKey.(*rsa.PrivateKey); ok {
		keyPem := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(privkey),
		})
		if err := os.WriteFile(privkeyFile, keyPem, 0o600); err != nil {
			return tls.Certificate{}, err
		}
	}

	return cert, nil
}
