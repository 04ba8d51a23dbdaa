package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangedAggregates(t *testing.T) {
	const a, b = "user-a", "user-b"

	ids := ChangedAggregates([]Event{
		NewXPGainedEvent(a, 50, 50, "session_complete"),
		NewProgressEvent(EventAntiCheatDenied, b, nil),
		NewLevelUpEvent(a, 1, 2),
		NewProgressEvent(EventWheelSpun, b, nil),
		NewProgressEvent(EventSkillUnlocked, "", nil),
	})
	assert.Equal(t, []string{a, b}, ids)

	assert.Nil(t, ChangedAggregates([]Event{NewProgressEvent(EventAntiCheatDenied, a, nil)}))
	assert.False(t, EventAntiCheatDenied.ChangesState())
	assert.True(t, EventSpinGranted.ChangesState())
}
