package encryption

import (
	"fmt"

	"lensfeed/internal/config"
	"lensfeed/internal/storage"
)

// NewSealerFromConfig creates a Sealer based on the configuration type.
// It returns a nil Sealer for type "none". An age identity is generated on
// first use if none exists yet.
func NewSealerFromConfig(cfg config.EncryptionConfig) (storage.Sealer, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.IdentityPath == "" {
			return nil, fmt.Errorf("identity_path required for age encryption")
		}
		s := NewAgeSealer(cfg)
		if !s.IsConfigured() {
			if err := s.Setup(); err != nil {
				return nil, fmt.Errorf("setting up age identity: %w", err)
			}
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
