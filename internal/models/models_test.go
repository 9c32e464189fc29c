package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntityType(t *testing.T) {
	assert.True(t, EntityRequirement.Valid())
	assert.False(t, EntityType("widget").Valid())
	assert.Equal(t, "requirements", EntityRequirement.Table())
	assert.Len(t, EntityTypes, 5)
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.NotEqual(t, id, NewTempID())
	assert.False(t, IsTempID("srv-1"))
}

func TestSegmentName(t *testing.T) {
	assert.Equal(t, "requirements_u1", SegmentName(EntityRequirement, "u1"))
}

func TestSegmentMetaFresh(t *testing.T) {
	now := time.Now()
	m := SegmentMeta{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, m.Fresh(now))
	assert.False(t, m.Fresh(now.Add(time.Minute)))
}

func TestTimeMillisRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	assert.True(t, now.Equal(MillisToTime(TimeToMillis(now))))
}
