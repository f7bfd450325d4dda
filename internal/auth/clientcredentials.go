// Package auth builds authenticated HTTP clients for the outbound calls
// KAS makes, currently just the attribute authority.
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials describes the transport identity for an outbound
// dependency: optional mTLS material plus an optional OAuth2 service
// account.
type ClientCredentials struct {
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Client assembles the http.Client: mTLS at the transport, token refresh
// above it when a token URL is configured.
func (cc *ClientCredentials) Client(ctx context.Context) (*http.Client, error) {
	transport, err := cc.transport()
	if err != nil {
		return nil, err
	}
	base := &http.Client{Transport: transport}
	if cc.TokenURL == "" {
		return base, nil
	}

	conf := &clientcredentials.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		TokenURL:     cc.TokenURL,
		Scopes:       cc.Scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	if _, err := conf.Token(ctx); err != nil {
		return nil, fmt.Errorf("client credentials login: %w", err)
	}
	return conf.Client(ctx), nil
}

func (cc *ClientCredentials) transport() (*http.Transport, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
	}
	transport = transport.Clone()

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cc.CACertPath != "" {
		caCert, err := os.ReadFile(cc.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cc.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}
	if cc.ClientCertPath != "" {
		cert, err := tls.LoadX509KeyPair(cc.ClientCertPath, cc.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	transport.TLSClientConfig = tlsConfig
	return transport, nil
}
