package probe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jacobpro/calpol/internal/probe"
)

func TestEvaluate_HTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:            probe.KindHTTP,
			URL:             srv.URL,
			Method:          http.MethodGet,
			FollowRedirects: true,
		},
	}
	if err := probe.Evaluate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluate_HTTP_UnexpectedResponseCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:            probe.KindHTTP,
			URL:             srv.URL,
			Method:          http.MethodGet,
			FollowRedirects: true,
		},
	}
	err := probe.Evaluate(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestEvaluate_HTTP_ExpectedCodeOverridesDefaultRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	expected := uint16(http.StatusNotFound)
	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:            probe.KindHTTP,
			URL:             srv.URL,
			Method:          http.MethodGet,
			FollowRedirects: true,
			ExpectedCode:    &expected,
		},
	}
	if err := probe.Evaluate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error when 404 is the expected code: %v", err)
	}
}

// TestEvaluate_HTTP_RedirectMismatch exercises the scenario-3 diagnostic: the
// probe follows a redirect successfully, but the final URL does not match
// the configured expected destination.
func TestEvaluate_HTTP_RedirectMismatch(t *testing.T) {
	var finalURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/landed", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	finalURL = srv.URL + "/landed"

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:                        probe.KindHTTP,
			URL:                         srv.URL + "/start",
			Method:                      http.MethodGet,
			FollowRedirects:             true,
			ExpectedRedirectDestination: srv.URL + "/somewhere-else",
		},
	}
	err := probe.Evaluate(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected a redirect mismatch error")
	}
	want := "redirects did not match. expected: " + srv.URL + "/somewhere-else" + ", found: " + finalURL
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("err = %q, want it to contain %q", err.Error(), want)
	}
}

func TestEvaluate_HTTP_RedirectMatchPasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/landed", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:                        probe.KindHTTP,
			URL:                         srv.URL + "/start",
			Method:                      http.MethodGet,
			FollowRedirects:             true,
			ExpectedRedirectDestination: srv.URL + "/landed",
		},
	}
	if err := probe.Evaluate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluate_HTTP_CertificateCheckedOutOfBand(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant: &probe.HTTPConfig{
			Type:               probe.KindHTTP,
			URL:                srv.URL,
			Method:             http.MethodGet,
			FollowRedirects:    true,
			VerifySSL:          false,
			MinCertExpiryHours: 1,
		},
	}
	if err := probe.Evaluate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error checking httptest's own certificate: %v", err)
	}
}
