package filetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(UnixEpoch, Timestamp(time.Unix(0, 0)))
	assert.Equal(UnixEpoch+10000000, Timestamp(time.Unix(1, 0)))
	assert.Equal(UnixEpoch+1, Timestamp(time.Unix(0, 100)))
	assert.Equal(uint64(0), Timestamp(time.Time{}))
	assert.Equal(uint64(0), Timestamp(time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestTimeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 2, 29, 13, 37, 42, 123456700, time.UTC)
	back := Time(Timestamp(now))
	assert.True(now.Equal(back), "%s != %s", now, back)

	// Sub-tick precision is dropped.
	odd := time.Date(2024, 2, 29, 13, 37, 42, 123456789, time.UTC)
	assert.True(Time(Timestamp(odd)).Equal(odd.Truncate(100 * time.Nanosecond)))

	assert.True(Time(0).IsZero())
}

func TestSplitJoin(t *testing.T) {
	assert := assert.New(t)

	ft := Timestamp(time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC))
	low, high := Split(ft)
	assert.Equal(ft, Join(low, high))
	assert.Equal(uint32(ft), low)
}
