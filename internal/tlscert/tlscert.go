// Package tlscert loads TLS material for the SMTP server.
//
// This is treated as an external collaborator to the protocol core (spec
// §1): the core only ever asks "is TLS configured" and "upgrade this
// net.Conn to TLS", it never parses certificate files itself. Grounded on
// chasquid's Server.AddCerts (internal/smtpsrv/server.go).
package tlscert

import "crypto/tls"

// Load reads a certificate/key pair and returns a *tls.Config suitable for
// both STARTTLS upgrades and implicit-TLS listeners.
func Load(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
