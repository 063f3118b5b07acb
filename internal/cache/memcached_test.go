package cache

import (
	"strings"
	"testing"
	"time"
)

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:1, ,b:2 ")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v", got)
	}
}

func TestItemKey_ReplacesSpaces(t *testing.T) {
	if got := itemKey("dera ghazi khan"); got != "weather:dera_ghazi_khan" {
		t.Errorf("itemKey() = %q", got)
	}
}

func TestMemcachedCache_Expiration(t *testing.T) {
	tests := []struct {
		freshness time.Duration
		want      int32
	}{
		{300 * time.Second, 300},
		{1500 * time.Millisecond, 2},
		{0, 1},
		{90 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		c, _ := NewMemcachedCache("localhost:11211", 0, 0, tt.freshness)
		if got := c.expiration(); got != tt.want {
			t.Errorf("expiration(%v) = %d, want %d", tt.freshness, got, tt.want)
		}
	}
}

// TestItemKey_LongKeysHashed verifies keys past memcached's limit stay valid and distinct.
func TestItemKey_LongKeysHashed(t *testing.T) {
	long := strings.Repeat("京", 100)
	other := strings.Repeat("京", 99) + "都"

	got := itemKey(long)
	if len(got) > maxKeyLen {
		t.Errorf("len(itemKey) = %d, want <= %d", len(got), maxKeyLen)
	}
	if !strings.HasPrefix(got, "weather:sha1:") {
		t.Errorf("itemKey(long) = %q, want sha1 form", got)
	}
	if got == itemKey(other) {
		t.Error("distinct long keys collided")
	}
	if itemKey("karachi") != "weather:karachi" {
		t.Errorf("short key changed: %q", itemKey("karachi"))
	}
}
