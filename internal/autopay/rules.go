package autopay

import (
	"sort"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// Matches reports whether rule approves a payment of amount to peer via method.
func Matches(rule *models.AutoPayRule, peer string, amount uint64, method string) bool {
	if rule == nil || !rule.IsEnabled {
		return false
	}
	if amount > rule.MaxAmountSats {
		return false
	}
	if rule.PeerPubkey != "" && rule.PeerPubkey != peer {
		return false
	}
	if len(rule.AllowedPeers) > 0 && !rule.AllowedPeers.Contains(peer) {
		return false
	}
	if len(rule.AllowedMethods) > 0 && !rule.AllowedMethods.Contains(method) {
		return false
	}
	return true
}

// FindMatch returns the first rule in the given order that matches, or nil.
func FindMatch(rules []*models.AutoPayRule, peer string, amount uint64, method string) *models.AutoPayRule {
	for _, rule := range rules {
		if Matches(rule, peer, amount, method) {
			return rule
		}
	}
	return nil
}

// OrderRules returns a copy of rules sorted by priority, then creation time,
// then id.
func OrderRules(rules []*models.AutoPayRule) []*models.AutoPayRule {
	ordered := make([]*models.AutoPayRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ordered
}
