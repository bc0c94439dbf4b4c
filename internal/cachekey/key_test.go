package cachekey

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKeyDeterminism(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Build the same logical parameter set many times; Go map iteration
	// order varies between runs, so repeated construction exercises
	// order independence.
	var first string
	for i := 0; i < 50; i++ {
		params := map[string]any{
			"origin":      "JFK",
			"destination": "LAX",
			"date_bucket": date,
			"adults":      2,
		}
		k := Key("price-monitor", params)
		if first == "" {
			first = k
			continue
		}
		if k != first {
			t.Fatalf("iteration %d: key %q != %q", i, k, first)
		}
	}
}

func TestKeyNamespacePrefix(t *testing.T) {
	k := Key("inspiration", map[string]any{"origin": "SFO"})
	if !strings.HasPrefix(k, "inspiration:") {
		t.Errorf("key %q missing namespace prefix", k)
	}
	if len(k) != len("inspiration:")+64 {
		t.Errorf("key %q has unexpected digest length", k)
	}
}

func TestKeyNilValuesDropped(t *testing.T) {
	with := Key("price-monitor", map[string]any{"origin": "JFK", "cabin": nil})
	without := Key("price-monitor", map[string]any{"origin": "JFK"})
	if with != without {
		t.Errorf("nil value changed key: %q vs %q", with, without)
	}
}

func TestKeySeparation(t *testing.T) {
	seen := make(map[string]string)
	routes := []string{"JFK", "LAX", "SFO", "ORD", "MIA", "SEA", "BOS", "DEN"}

	for _, o := range routes {
		for _, d := range routes {
			if o == d {
				continue
			}
			for day := 0; day < 10; day++ {
				params := map[string]any{
					"origin":      o,
					"destination": d,
					"date_bucket": fmt.Sprintf("2026-03-%02d", day+1),
				}
				k := Key("price-monitor", params)
				id := o + d + fmt.Sprint(day)
				if prev, ok := seen[k]; ok {
					t.Fatalf("collision: %s and %s share key %s", prev, id, k)
				}
				seen[k] = id
			}
		}
	}
}

func TestKeyValueVsKeyBoundary(t *testing.T) {
	// "ab"="c" must not collide with "a"="bc".
	k1 := Key("ns", map[string]any{"ab": "c"})
	k2 := Key("ns", map[string]any{"a": "bc"})
	if k1 == k2 {
		t.Error("boundary ambiguity between key and value")
	}
}

func TestKeySeparatorInjection(t *testing.T) {
	// A value containing the pair and join separators must not serialize
	// like a different parameter set.
	cases := []struct {
		name string
		a    map[string]any
		b    map[string]any
	}{
		{
			name: "value smuggles a second pair",
			a:    map[string]any{"a": "b&c=d"},
			b:    map[string]any{"a": "b", "c": "d"},
		},
		{
			name: "equals sign in value",
			a:    map[string]any{"a": "b=c"},
			b:    map[string]any{"a=b": "c"},
		},
		{
			name: "ampersand in key",
			a:    map[string]any{"a&b": "c"},
			b:    map[string]any{"a": "", "b": "c"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Key("ns", tc.a) == Key("ns", tc.b) {
				t.Errorf("distinct parameter sets collide: %v vs %v", tc.a, tc.b)
			}
		})
	}
}
