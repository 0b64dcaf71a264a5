// Package probe implements the address-family-honest HTTP, SMTP, and TCP
// checks a probe can be configured to run, plus the certificate-expiry
// validator they share. The package has no dependency on how or when a
// probe's results are stored or notified on.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IPVersion selects which address families a probe is evaluated against.
type IPVersion string

const (
	IPVersionV4   IPVersion = "v4"
	IPVersionV6   IPVersion = "v6"
	IPVersionBoth IPVersion = "both"
)

// Kind identifies a Variant's concrete probe type. It doubles as the JSON
// "type" discriminator.
type Kind string

const (
	KindHTTP Kind = "http"
	KindSMTP Kind = "smtp"
	KindTCP  Kind = "tcp"
)

// Variant is a closed tagged union over the probe kinds Calpol knows how to
// run. The unexported marker method prevents other packages from adding
// variants Evaluate doesn't know how to dispatch.
type Variant interface {
	Kind() Kind
	variant()
}

// Config is a single probe's full evaluation configuration: which address
// families to try, and what to do once connected.
type Config struct {
	IPVersion IPVersion
	Variant   Variant
}

// UnmarshalJSON decodes a tagged-union probe configuration, applying the
// same per-variant defaults as the model this was translated from.
func (c *Config) UnmarshalJSON(data []byte) error {
	var head struct {
		IPVersion IPVersion `json:"ip_version"`
		Type      Kind      `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("probe config: %w", err)
	}
	if head.IPVersion == "" {
		head.IPVersion = IPVersionBoth
	}
	c.IPVersion = head.IPVersion

	switch head.Type {
	case KindHTTP:
		v := newHTTPConfig()
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("probe config: http: %w", err)
		}
		c.Variant = v
	case KindSMTP:
		v := newSMTPConfig()
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("probe config: smtp: %w", err)
		}
		if err := v.validate(); err != nil {
			return err
		}
		c.Variant = v
	case KindTCP:
		v := &TCPConfig{Type: KindTCP}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("probe config: tcp: %w", err)
		}
		c.Variant = v
	default:
		return fmt.Errorf("probe config: unknown type %q", head.Type)
	}
	return nil
}

// MarshalJSON re-flattens IPVersion into whichever variant is set, and writes
// the "type" tag from the variant's Kind so a variant whose Type field was
// left unset still decodes back to the same variant.
func (c Config) MarshalJSON() ([]byte, error) {
	if c.Variant == nil {
		return nil, errors.New("probe config: no variant set")
	}
	b, err := json.Marshal(c.Variant)
	if err != nil {
		return nil, fmt.Errorf("probe config: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("probe config: %w", err)
	}
	ipv, err := json.Marshal(c.IPVersion)
	if err != nil {
		return nil, err
	}
	fields["ip_version"] = ipv
	kind, err := json.Marshal(c.Variant.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}

// HTTPConfig checks a URL returns an expected response code, optionally
// following redirects and validating the server certificate's expiry.
type HTTPConfig struct {
	Type                        Kind    `json:"type"`
	URL                         string  `json:"url"`
	VerifySSL                   bool    `json:"verify_ssl"`
	MinCertExpiryHours          uint16  `json:"minimum_certificate_expiry_hours"`
	FollowRedirects             bool    `json:"follow_redirects"`
	ExpectedRedirectDestination string  `json:"expected_redirect_destination,omitempty"`
	Method                      string  `json:"method"`
	ExpectedCode                *uint16 `json:"expected_code,omitempty"`
}

func newHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Type:               KindHTTP,
		VerifySSL:          true,
		MinCertExpiryHours: 36,
		FollowRedirects:    true,
		Method:             "GET",
	}
}

func (c *HTTPConfig) Kind() Kind { return KindHTTP }
func (*HTTPConfig) variant()     {}

// SMTPEncryption is the transport security an SMTP probe expects.
type SMTPEncryption string

const (
	SMTPEncryptionNone     SMTPEncryption = "none"
	SMTPEncryptionSTARTTLS SMTPEncryption = "starttls"
	SMTPEncryptionSMTPS    SMTPEncryption = "smtps"
)

// SMTPServerType distinguishes a mail submission agent (user-facing relay,
// typically on 587/465) from a mail transfer agent (MX-resolved, port 25).
type SMTPServerType string

const (
	SMTPServerTypeMSA SMTPServerType = "mail_submission_agent"
	SMTPServerTypeMTA SMTPServerType = "mail_transfer_agent"
)

// SMTPConfig checks that an SMTP server accepts a connection (and, for MSA
// targets, an explicit or encryption-derived port), optionally validating
// the negotiated certificate's expiry.
type SMTPConfig struct {
	Type               Kind           `json:"type"`
	Domain             string         `json:"domain"`
	Encryption         SMTPEncryption `json:"encryption"`
	MinCertExpiryHours uint16         `json:"minimum_certificate_expiry_hours"`
	ServerType         SMTPServerType `json:"smtp_server_type"`
	MSAPort            *uint16        `json:"port,omitempty"`
}

func newSMTPConfig() *SMTPConfig {
	return &SMTPConfig{
		Type:               KindSMTP,
		Encryption:         SMTPEncryptionSTARTTLS,
		MinCertExpiryHours: 36,
	}
}

func (c *SMTPConfig) Kind() Kind { return KindSMTP }
func (*SMTPConfig) variant()     {}

func (c *SMTPConfig) validate() error {
	if len(c.Domain) > 253 {
		return fmt.Errorf("probe config: smtp: domain %q exceeds 253 characters", c.Domain)
	}
	if c.ServerType == SMTPServerTypeMTA && c.Encryption == SMTPEncryptionSMTPS {
		return errors.New("Incompatible options: SMTPS and MTA")
	}
	return nil
}

// TCPConfig checks that a TCP socket connects.
type TCPConfig struct {
	Type Kind   `json:"type"`
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (c *TCPConfig) Kind() Kind { return KindTCP }
func (*TCPConfig) variant()     {}
