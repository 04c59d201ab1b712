package entry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShiftKeepsTwoSlots(t *testing.T) {
	var e Entry
	t0 := time.Unix(1700000000, 0)

	e.Shift("A", t0)
	assert.Equal(t, "", e.CurrentIP)
	assert.Equal(t, "A", e.LatestIP)
	assert.True(t, e.Changed())

	e.Shift("B", t0.Add(time.Minute))
	assert.Equal(t, "A", e.CurrentIP)
	assert.Equal(t, "B", e.LatestIP)

	e.Shift("B", t0.Add(2*time.Minute))
	assert.Equal(t, "B", e.CurrentIP)
	assert.Equal(t, "B", e.LatestIP)
	assert.False(t, e.Changed())
	assert.Equal(t, t0.Add(2*time.Minute), e.UpdatedAt)
}

func TestAddresses(t *testing.T) {
	entries := []Entry{
		{Name: "a", LatestIP: "10.0.0.1"},
		{Name: "never", LatestIP: ""},
		{Name: "b", LatestIP: "2001:db8::1"},
		{Name: "c", LatestIP: "10.0.0.1"},
	}
	assert.Equal(t, []string{"10.0.0.1", "2001:db8::1"}, Addresses(entries))
	assert.Empty(t, Addresses(nil))
}
