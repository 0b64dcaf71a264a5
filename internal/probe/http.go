package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	httpTimeout = 5 * time.Second
	tlsTimeout  = 5 * time.Second
	userAgent   = "calpol-runner"
)

func evaluateHTTP(ctx context.Context, cfg *HTTPConfig, fam Family) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	client := &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			DialContext:     fam.dialContext(httpTimeout),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
		},
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, cfg.Method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("invalid http method: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	codeOK := resp.StatusCode >= 200 && resp.StatusCode < 300
	if cfg.ExpectedCode != nil {
		codeOK = resp.StatusCode == int(*cfg.ExpectedCode)
	}
	if !codeOK {
		return fmt.Errorf("received unexpected http response code: %d", resp.StatusCode)
	}

	if cfg.FollowRedirects && cfg.ExpectedRedirectDestination != "" && resp.Request != nil {
		final := resp.Request.URL.String()
		if final != cfg.ExpectedRedirectDestination {
			return fmt.Errorf("redirects did not match. expected: %s, found: %s", cfg.ExpectedRedirectDestination, final)
		}
	}

	if u.Scheme == "https" && cfg.MinCertExpiryHours > 0 {
		if err := checkHTTPCertificate(reqCtx, u, fam, cfg.VerifySSL, cfg.MinCertExpiryHours); err != nil {
			return err
		}
	}
	return nil
}

// checkHTTPCertificate opens a second, bare TLS connection alongside the
// HTTP request: net/http never hands the caller the negotiated
// tls.ConnectionState for a request it made itself, so there is no way to
// read the peer certificate off the client's own connection.
func checkHTTPCertificate(ctx context.Context, u *url.URL, fam Family, verify bool, minHours uint16) error {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}
	addr, err := fam.resolveHostPort(ctx, host, port)
	if err != nil {
		return err
	}

	dialer := fam.dialer(tlsTimeout)
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: !verify,
		ServerName:         host,
	})
	if err != nil {
		return fmt.Errorf("failed to establish tls stream: %w", err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return fmt.Errorf("failed to get peer certificate")
	}
	return ValidateCertificateExpiry(certs[0].Raw, minHours, time.Now())
}
