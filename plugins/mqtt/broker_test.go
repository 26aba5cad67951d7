package mqtt

import "testing"

func TestStripSharedPrefix(t *testing.T) {
	cases := []struct {
		topic      string
		wantFilter string
		wantShared bool
	}{
		{"orders/created", "orders/created", false},
		{"$share/workers/orders/created", "orders/created", true},
		{"$share/workers/sensors/+/reading", "sensors/+/reading", true},
		{"$share/onlygroup", "$share/onlygroup", false},
	}
	for _, c := range cases {
		filter, shared := stripSharedPrefix(c.topic)
		if filter != c.wantFilter || shared != c.wantShared {
			t.Errorf("stripSharedPrefix(%q) = (%q, %v), want (%q, %v)",
				c.topic, filter, shared, c.wantFilter, c.wantShared)
		}
	}
}
