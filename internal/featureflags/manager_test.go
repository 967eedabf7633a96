package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "rider-1"), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, "rider-1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,over=250%")

	assert.True(t, m.Enabled("always", "rider-1"))
	assert.True(t, m.Enabled("always", ""))
	assert.True(t, m.Enabled("over", "rider-1"))
	assert.False(t, m.Enabled("never", "rider-1"))

	first := m.Enabled("canary", "driver-42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "driver-42"), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", ""), "partial rollout needs a user")
}

func TestEnabled_PartialRolloutSplitsUsers(t *testing.T) {
	m := NewManager(ExactPaginationTotal + "=50%")

	on := 0
	for i := 0; i < 200; i++ {
		if m.Enabled(ExactPaginationTotal, "user-"+string(rune('a'+i%26))+string(rune('a'+i/26))) {
			on++
		}
	}
	assert.Greater(t, on, 0)
	assert.Less(t, on, 200)
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, Y = 20% ,z=off,w=maybe,=on ")

	assert.Equal(t, map[string]string{"x": "on", "y": "20%", "z": "off"}, m.Raw())

	snap := m.Snapshot("rider-7")
	assert.Len(t, snap, 3)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(UnreadCache, "rider-1"))
}
