package probe_test

import (
	"encoding/json"
	"testing"

	"github.com/jacobpro/calpol/internal/probe"
)

func TestConfig_UnmarshalJSON_HTTPDefaults(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{"type":"http","url":"https://example.com"}`), &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IPVersion != probe.IPVersionBoth {
		t.Errorf("IPVersion = %q, want %q", cfg.IPVersion, probe.IPVersionBoth)
	}
	h, ok := cfg.Variant.(*probe.HTTPConfig)
	if !ok {
		t.Fatalf("Variant = %T, want *probe.HTTPConfig", cfg.Variant)
	}
	if !h.VerifySSL {
		t.Error("VerifySSL default = false, want true")
	}
	if h.MinCertExpiryHours != 36 {
		t.Errorf("MinCertExpiryHours = %d, want 36", h.MinCertExpiryHours)
	}
	if !h.FollowRedirects {
		t.Error("FollowRedirects default = false, want true")
	}
	if h.Method != "GET" {
		t.Errorf("Method = %q, want GET", h.Method)
	}
}

func TestConfig_UnmarshalJSON_HTTPOverrides(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{
		"type":"http",
		"url":"https://example.com",
		"verify_ssl":false,
		"method":"POST",
		"ip_version":"v4"
	}`), &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IPVersion != probe.IPVersionV4 {
		t.Errorf("IPVersion = %q, want v4", cfg.IPVersion)
	}
	h := cfg.Variant.(*probe.HTTPConfig)
	if h.VerifySSL {
		t.Error("VerifySSL = true, want false")
	}
	if h.Method != "POST" {
		t.Errorf("Method = %q, want POST", h.Method)
	}
}

func TestConfig_UnmarshalJSON_SMTPDefaults(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{"type":"smtp","domain":"mail.example.com","smtp_server_type":"mail_submission_agent"}`), &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := cfg.Variant.(*probe.SMTPConfig)
	if s.Encryption != probe.SMTPEncryptionSTARTTLS {
		t.Errorf("Encryption = %q, want starttls", s.Encryption)
	}
	if s.MinCertExpiryHours != 36 {
		t.Errorf("MinCertExpiryHours = %d, want 36", s.MinCertExpiryHours)
	}
}

func TestConfig_UnmarshalJSON_SMTPRejectsSMTPSWithMTA(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{
		"type":"smtp",
		"domain":"example.com",
		"encryption":"smtps",
		"smtp_server_type":"mail_transfer_agent"
	}`), &cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "Incompatible options: SMTPS and MTA" {
		t.Errorf("error = %q, want exact MTA/SMTPS incompatibility message", err.Error())
	}
}

func TestConfig_UnmarshalJSON_SMTPRejectsLongDomain(t *testing.T) {
	longDomain := ""
	for i := 0; i < 254; i++ {
		longDomain += "a"
	}
	var cfg probe.Config
	data, _ := json.Marshal(map[string]any{
		"type":             "smtp",
		"domain":           longDomain,
		"smtp_server_type": "mail_submission_agent",
	})
	if err := json.Unmarshal(data, &cfg); err == nil {
		t.Fatal("expected error for domain over 253 characters")
	}
}

func TestConfig_UnmarshalJSON_TCP(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{"type":"tcp","host":"example.com","port":25}`), &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := cfg.Variant.(*probe.TCPConfig)
	if tc.Host != "example.com" || tc.Port != 25 {
		t.Errorf("TCPConfig = %+v", tc)
	}
}

func TestConfig_UnmarshalJSON_UnknownType(t *testing.T) {
	var cfg probe.Config
	err := json.Unmarshal([]byte(`{"type":"ftp"}`), &cfg)
	if err == nil {
		t.Fatal("expected error for unknown probe type")
	}
}

func TestConfig_MarshalJSON_RoundTrips(t *testing.T) {
	code := uint16(200)
	cfg := probe.Config{
		IPVersion: probe.IPVersionV6,
		Variant: &probe.HTTPConfig{
			Type:               probe.KindHTTP,
			URL:                "https://example.com",
			VerifySSL:          true,
			MinCertExpiryHours: 12,
			FollowRedirects:    true,
			Method:             "GET",
			ExpectedCode:       &code,
		},
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round probe.Config
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if round.IPVersion != probe.IPVersionV6 {
		t.Errorf("IPVersion = %q, want v6", round.IPVersion)
	}
	h := round.Variant.(*probe.HTTPConfig)
	if h.URL != "https://example.com" || *h.ExpectedCode != 200 {
		t.Errorf("round-tripped HTTPConfig = %+v", h)
	}
}
