package probe

import (
	"context"
	"fmt"
)

// Evaluate runs cfg against every address family its IPVersion selects,
// stopping at (and wrapping with) the first family-scoped failure, mirroring
// the original per-family ".context(format!(\"({})\", net_domain))" behaviour.
func Evaluate(ctx context.Context, cfg Config) error {
	for _, fam := range FamiliesFor(cfg.IPVersion) {
		if err := evaluateVariant(ctx, cfg.Variant, fam); err != nil {
			return fmt.Errorf("(%s): %w", fam, err)
		}
	}
	return nil
}

func evaluateVariant(ctx context.Context, v Variant, fam Family) error {
	switch c := v.(type) {
	case *HTTPConfig:
		return evaluateHTTP(ctx, c, fam)
	case *SMTPConfig:
		return evaluateSMTP(ctx, c, fam)
	case *TCPConfig:
		return evaluateTCP(ctx, c, fam)
	default:
		return fmt.Errorf("probe: unknown variant %T", v)
	}
}
