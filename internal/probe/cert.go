package probe

import (
	"crypto/x509"
	"fmt"
	"time"
)

// ValidateCertificateExpiry fails if cert (DER-encoded) has already expired,
// or expires sooner than minimumExpiryHours from now.
func ValidateCertificateExpiry(der []byte, minimumExpiryHours uint16, now time.Time) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	expiresIn := cert.NotAfter.Sub(now)
	if expiresIn <= 0 {
		return fmt.Errorf("certificate has expired")
	}
	minimum := time.Duration(minimumExpiryHours) * time.Hour
	if expiresIn < minimum {
		return fmt.Errorf("certificate will expire in %d hours", int(expiresIn.Hours()))
	}
	return nil
}
