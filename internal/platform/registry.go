package platform

import (
	"fmt"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/retry"
)

// Registration binds a launcher to its retry budget.
type Registration struct {
	Launcher Launcher
	Retry    retry.Policy
}

type Registry struct {
	entries map[campaign.Platform]Registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[campaign.Platform]Registration)}
}

func (r *Registry) Register(p campaign.Platform, l Launcher, policy retry.Policy) {
	r.entries[p] = Registration{Launcher: l, Retry: policy}
}

func (r *Registry) Lookup(p campaign.Platform) (Registration, error) {
	reg, ok := r.entries[p]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", campaign.ErrUnknownPlatform, p)
	}
	return reg, nil
}

func (r *Registry) Platforms() []campaign.Platform {
	out := make([]campaign.Platform, 0, len(r.entries))
	for p := range r.entries {
		out = append(out, p)
	}
	return out
}
