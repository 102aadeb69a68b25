package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOrFetch_FetchesOnce(t *testing.T) {
	c := New()
	calls := 0
	fetch := func() string {
		calls++
		return "ext4"
	}

	assert.Equal(t, "ext4", c.GetOrFetch("sda1", "FSTYPE", fetch))
	assert.Equal(t, "ext4", c.GetOrFetch("sda1", "FSTYPE", fetch))
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_CachesEmpty(t *testing.T) {
	c := New()
	calls := 0
	fetch := func() string {
		calls++
		return ""
	}

	c.GetOrFetch("sdb", "LABEL", fetch)
	c.GetOrFetch("sdb", "LABEL", fetch)
	assert.Equal(t, 1, calls)

	v, ok := c.Get("sdb", "LABEL")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestKeysAreDeviceAndProperty(t *testing.T) {
	c := New()
	c.Set("sda", "SIZE", "1024")
	c.Set("sda", "UUID", "abc")
	c.Set("sdb", "SIZE", "2048")
	c.Set("sdb", "SIZE", "4096")

	assert.Equal(t, 3, c.Len())
	v, _ := c.Get("sdb", "SIZE")
	assert.Equal(t, "4096", v)

	_, ok := c.Get("sdb", "UUID")
	assert.False(t, ok)
}
