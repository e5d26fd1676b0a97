package config

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// FeatureFlags manages feature toggles with gradual, per-requester rollout.
// Requesters are bucketed by a stable hash of their profile ID, so a
// requester stays on the same side of a partial rollout across sessions.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // requesterID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// Serve repeated ranking requests from the Redis cache
	FeatureRankingCache = "matching.ranking_cache"

	// Send top candidates to the explanation service after ranking
	FeatureExplanations = "matching.explanations"

	// Persist swipe facts (accept/reject/connect) to the connection store
	FeatureSwipePersistence = "matching.swipe_persistence"
)

// LoadFeatureFlags loads feature flags, applying FEATURE_<NAME> overrides from v.
// v may be nil, in which case defaults are used.
func LoadFeatureFlags(v *viper.Viper) *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	if v != nil {
		ff.loadFrom(v)
	}
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRankingCache] = &Feature{
		Name:           FeatureRankingCache,
		Description:    "Cache ranked shortlists keyed by a digest of the pool",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureExplanations] = &Feature{
		Name:           FeatureExplanations,
		Description:    "Enrich top candidates with prose from the explanation service",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureSwipePersistence] = &Feature{
		Name:           FeatureSwipePersistence,
		Description:    "Persist swipe and connection facts",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFrom reads overrides.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_MATCHING_EXPLANATIONS=25 (25% rollout)
func (ff *FeatureFlags) loadFrom(v *viper.Viper) {
	for name, feature := range ff.features {
		val := strings.TrimSpace(v.GetString(featureNameToEnvKey(name)))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "matching.ranking_cache" -> "FEATURE_MATCHING_RANKING_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the requester.
// An empty requesterID only passes at 100% rollout.
func (ff *FeatureFlags) IsEnabled(featureName, requesterID string) bool {
	if ff == nil {
		return false
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if requesterID != "" {
		if overrides, ok := ff.userOverrides[requesterID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if requesterID == "" {
		return false
	}
	return isInRollout(requesterID, featureName, feature.RolloutPercent)
}

// isInRollout uses consistent hashing so requesters stay in their bucket.
func isInRollout(requesterID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(requesterID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride sets a feature override for a specific requester.
func (ff *FeatureFlags) SetUserOverride(requesterID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[requesterID]; !ok {
		ff.userOverrides[requesterID] = make(map[string]bool)
	}
	ff.userOverrides[requesterID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a requester.
func (ff *FeatureFlags) ClearUserOverrides(requesterID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, requesterID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
