package observ

import (
	"encoding/json"
	"fmt"
	"time"
)

// Log emits one structured JSON event line to stdout.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	fmt.Println(string(b))
}

// Warn emits a structured event tagged as a warning. Used by degrade paths
// (shared store unhealthy, notification delivery failures) that must be
// visible but never propagate an error to the caller.
func Warn(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["level"] = "warn"
	Log(event, kv)
}
