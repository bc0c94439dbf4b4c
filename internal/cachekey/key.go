// Package cachekey builds deterministic cache keys from a namespace and an
// arbitrary parameter map. Identical parameter sets produce identical keys
// regardless of insertion order, so every caller of the same upstream query
// family lands on the same cache entry.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Key serializes params into "k=v" pairs sorted by key, hashes the joined
// string and returns "<namespace>:<digest>". Keys and values are
// query-escaped before joining so the serialization stays injective: a value
// containing "&" or "=" cannot spell out another parameter set. Nil values
// are dropped so an absent parameter and an explicit nil encode identically.
func Key(namespace string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(canonValue(params[k])))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// canonValue renders a parameter value in a stable form. Timestamps get
// RFC3339 so two time.Time values for the same instant always agree; floats
// use the shortest round-trippable representation.
func canonValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", t)
	}
}
