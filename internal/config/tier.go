package config

import (
	"fmt"
	"strings"
	"time"
)

// Deployment tiers.
const (
	TierFree     = "free"
	TierStandard = "standard"
	TierBusiness = "business"
	TierPremium  = "premium"
)

// Profile is the processing shape of one deployment tier.
type Profile struct {
	Name                 string
	PageSize             int
	ClassifierWorkers    int
	InterBatchDelay      time.Duration
	MaxConcurrentReports int
}

var profiles = map[string]Profile{
	TierFree:     {Name: TierFree, PageSize: 15, ClassifierWorkers: 2, InterBatchDelay: 3 * time.Second, MaxConcurrentReports: 1},
	TierStandard: {Name: TierStandard, PageSize: 25, ClassifierWorkers: 4, InterBatchDelay: 2 * time.Second, MaxConcurrentReports: 3},
	TierBusiness: {Name: TierBusiness, PageSize: 50, ClassifierWorkers: 6, InterBatchDelay: time.Second, MaxConcurrentReports: 5},
	TierPremium:  {Name: TierPremium, PageSize: 100, ClassifierWorkers: 10, InterBatchDelay: 500 * time.Millisecond, MaxConcurrentReports: 10},
}

// LookupTier returns the profile for a tier name (case-insensitive).
func LookupTier(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown deployment_tier %q", ErrInvalidConfig, name)
	}
	return p, nil
}
