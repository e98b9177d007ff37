// Package tls builds TLS configurations for the heatcast HTTP and gRPC
// endpoints and for outbound clients (telemetry sources, remote models).
//
// All configurations require TLS 1.3. Server-side client verification is
// opt-in: dashboards reach the sampler from browsers that carry no client
// certificate, while service-to-service links can demand mutual TLS.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds certificate file paths for a client or server.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string

	// RequireClientCert makes a server reject peers without a certificate
	// signed by CAFile.
	RequireClientCert bool
}

// Validate checks that the files a server needs are present.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("tls enabled but cert/key files not specified")
	}
	if c.RequireClientCert && c.CAFile == "" {
		return errors.New("client certificate verification requires a CA file")
	}
	return checkFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// NewServerTLSConfig loads the server key pair. When CAFile is set, client
// certificates are verified against it: always required with
// RequireClientCert, otherwise only checked when presented.
func NewServerTLSConfig(c Config) (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
		if c.RequireClientCert {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return cfg, nil
}

// NewClientTLSConfig verifies servers against CAFile (system roots when
// empty) and presents CertFile/KeyFile when both are set.
func NewClientTLSConfig(c Config) (*tls.Config, error) {
	if err := checkFiles(c.CertFile, c.KeyFile, c.CAFile); err != nil {
		return nil, err
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, errors.New("client cert and key must be set together")
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS13}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func checkFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}
