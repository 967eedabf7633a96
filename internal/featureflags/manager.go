// Package featureflags evaluates rollout flags configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags understood by the inbox.
const (
	// ExactPaginationTotal makes list endpoints report a COUNT(*) total
	// instead of the length of the returned page.
	ExactPaginationTotal = "exact_pagination_total"
	// UnreadCache serves GET /unread-count through Redis.
	UnreadCache = "unread_cache"
)

type rule struct {
	raw     string
	enabled bool
	percent int // -1 when the rule is a plain on/off switch
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "exact_pagination_total=on,unread_cache=25%"
type Manager struct {
	rules map[string]rule
}

// NewManager creates a feature-flag manager from a comma-separated config string.
// Pairs that cannot be parsed are skipped.
func NewManager(raw string) *Manager {
	out := make(map[string]rule)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		if r, ok := parseRule(value); ok {
			out[key] = r
		}
	}

	return &Manager{rules: out}
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, enabled: true, percent: -1}, true
	case "off", "false", "0":
		return rule{raw: value, percent: -1}, true
	}
	pctRaw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}, false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil {
		return rule{}, false
	}
	return rule{raw: value, percent: min(max(pct, 0), 100)}, true
}

// Enabled returns whether a flag is enabled for a given user. Percentage
// rules bucket users deterministically, so a user keeps the same answer
// across requests. Anonymous callers only get fully rolled out flags.
func (m *Manager) Enabled(name, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	if r.percent < 0 {
		return r.enabled
	}
	switch {
	case r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
