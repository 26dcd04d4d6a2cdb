package payment

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Signed   SignedConfig
	Bearer   BearerConfig
}

// New builds the configured gateway.
func New(cfg Config, rates RateSource, log zerolog.Logger) (Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "signed":
		g := NewSigned(cfg.Signed, log)
		if g.Demo() {
			log.Warn().Msg("signed gateway credentials missing, running in demo mode")
		}
		return g, nil
	case "bearer":
		g := NewBearer(cfg.Bearer, rates, log)
		if g.Demo() {
			log.Warn().Msg("bearer gateway credentials missing, running in demo mode")
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}
