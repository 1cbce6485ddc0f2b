// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package writer

import (
	"path"
	"strings"
)

// Bootstrap tiers. Everything unmatched is QUARANTINE with confidence 0.
const (
	TierValidated  = "VALIDATED"
	TierQuarantine = "QUARANTINE"
)

// TierRule maps a glob pattern over source_ref to a tier and confidence.
type TierRule struct {
	Pattern    string  `yaml:"pattern"`
	Tier       string  `yaml:"tier"`
	Confidence float64 `yaml:"confidence"`
}

// TierClassifier assigns bootstrap tiers by first-match-wins glob over
// the chunk's source_ref.
type TierClassifier struct {
	rules []TierRule
}

// NewTierClassifier creates a classifier. Rules are evaluated in order.
func NewTierClassifier(rules []TierRule) *TierClassifier {
	return &TierClassifier{rules: rules}
}

// Classify returns the tier and confidence for a source_ref.
func (c *TierClassifier) Classify(sourceRef string) (string, float64) {
	for _, r := range c.rules {
		if globMatch(r.Pattern, sourceRef) {
			return r.Tier, r.Confidence
		}
	}
	return TierQuarantine, 0.0
}

// globMatch extends path.Match with a "**/" prefix meaning any leading
// directories, so "**/docs/*.md" matches at every depth.
func globMatch(pattern, ref string) bool {
	ref = strings.TrimPrefix(ref, "./")
	if ok, err := path.Match(pattern, ref); err == nil && ok {
		return true
	}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		if ok, err := path.Match(rest, ref); err == nil && ok {
			return true
		}
		segments := strings.Split(ref, "/")
		for i := 1; i < len(segments); i++ {
			if ok, err := path.Match(rest, strings.Join(segments[i:], "/")); err == nil && ok {
				return true
			}
		}
	}
	return false
}
