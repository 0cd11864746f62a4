package garden

import (
	"fmt"

	"github.com/pthm-cable/sap/config"
)

// TransportFromConfig returns the diffusion settings new plants start with.
func TransportFromConfig(cfg *config.Config) Transport {
	return Transport{
		Steps:      cfg.Diffusion.Steps,
		Multiplier: cfg.Derived.Multiplier32,
	}
}

// Populate spawns texts, or the configured plants when texts is empty, or
// seed_copies copies of the seed when no plants are configured. It returns
// the number of plants spawned.
func (g *Garden) Populate(cfg *config.Config, texts []string) (int, error) {
	if len(texts) == 0 {
		texts = cfg.Garden.Plants
	}
	if len(texts) == 0 {
		for i := 0; i < cfg.Garden.SeedCopies; i++ {
			texts = append(texts, cfg.Garden.Seed)
		}
	}

	transport := TransportFromConfig(cfg)
	for i, text := range texts {
		if _, err := g.Spawn(text, transport); err != nil {
			return i, fmt.Errorf("plant %d: %w", i+1, err)
		}
	}
	return len(texts), nil
}
