package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	smtpTimeout = 5 * time.Second
	ehloName    = "calpol-runner"
)

func evaluateSMTP(ctx context.Context, cfg *SMTPConfig, fam Family) error {
	host, err := smtpHost(ctx, cfg)
	if err != nil {
		return err
	}
	port := smtpPort(cfg)

	addr, err := fam.resolveHostPort(ctx, host, strconv.Itoa(int(port)))
	if err != nil {
		return err
	}

	dialer := fam.dialer(smtpTimeout)

	var conn net.Conn
	if cfg.Encryption == SMTPEncryptionSMTPS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to the smtp server: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(smtpTimeout))

	tp := textproto.NewConn(conn)
	if _, _, err := tp.ReadResponse(220); err != nil {
		return fmt.Errorf("failed to connect to the smtp server: %w", err)
	}
	if err := smtpEHLO(tp); err != nil {
		return fmt.Errorf("failed to connect to the smtp server: %w", err)
	}

	if cfg.Encryption == SMTPEncryptionSTARTTLS {
		id, err := tp.Cmd("STARTTLS")
		if err != nil {
			return fmt.Errorf("failed to starttls: %w", err)
		}
		tp.StartResponse(id)
		_, _, err = tp.ReadResponse(220)
		tp.EndResponse(id)
		if err != nil {
			return fmt.Errorf("failed to starttls: %w", err)
		}

		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("failed to starttls: %w", err)
		}
		conn = tlsConn
		tp = textproto.NewConn(conn)
		if err := smtpEHLO(tp); err != nil {
			return fmt.Errorf("failed to starttls: %w", err)
		}
	}

	// A NOOP round-trip stands in for test_connected(): the session is
	// considered live only if the server still answers after (START)TLS.
	id, err := tp.Cmd("NOOP")
	if err != nil {
		return fmt.Errorf("testing smtp connection failed: %w", err)
	}
	tp.StartResponse(id)
	_, _, err = tp.ReadResponse(250)
	tp.EndResponse(id)
	if err != nil {
		return fmt.Errorf("testing smtp connection failed: %w", err)
	}

	if cfg.Encryption != SMTPEncryptionNone && cfg.MinCertExpiryHours > 0 {
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			return fmt.Errorf("failed to get certificate")
		}
		certs := tlsConn.ConnectionState().PeerCertificates
		if len(certs) == 0 {
			return fmt.Errorf("failed to get certificate")
		}
		if err := ValidateCertificateExpiry(certs[0].Raw, cfg.MinCertExpiryHours, time.Now()); err != nil {
			return err
		}
	}

	_, _ = tp.Cmd("QUIT")
	return nil
}

func smtpEHLO(tp *textproto.Conn) error {
	id, err := tp.Cmd("EHLO %s", ehloName)
	if err != nil {
		return err
	}
	tp.StartResponse(id)
	defer tp.EndResponse(id)
	_, _, err = tp.ReadResponse(250)
	return err
}

// smtpHost resolves the MX record for a mail-transfer-agent target
// (stripping the trailing dot DNS MX records conventionally carry), or
// returns the configured domain verbatim for a mail-submission-agent
// target.
func smtpHost(ctx context.Context, cfg *SMTPConfig) (string, error) {
	if cfg.ServerType != SMTPServerTypeMTA {
		return cfg.Domain, nil
	}
	mxs, err := net.DefaultResolver.LookupMX(ctx, cfg.Domain)
	if err != nil {
		return "", fmt.Errorf("failed to lookup mx record: %w", err)
	}
	if len(mxs) == 0 {
		return "", fmt.Errorf("no mx records found")
	}
	return strings.TrimSuffix(mxs[0].Host, "."), nil
}

func smtpPort(cfg *SMTPConfig) uint16 {
	if cfg.ServerType == SMTPServerTypeMTA {
		return 25
	}
	if cfg.MSAPort != nil {
		return *cfg.MSAPort
	}
	if cfg.Encryption == SMTPEncryptionSMTPS {
		return 465
	}
	return 587
}
