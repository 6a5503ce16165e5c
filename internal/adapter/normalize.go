package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lookup-tracker/internal/types"
)

// Envelope is the normalized view of a provider response. All tolerance for
// the provider's loose JSON shapes lives here: the payload may be a bare
// object or a one-element array wrapping it, and the fields of interest may
// sit at the top level or one level under a "result" or "data" key.
type Envelope struct {
	SearchID string          // "" when no recognizable job identifier was found
	Status   string          // upper-cased, "" when no recognizable status was found
	Balance  *float64        // only populated for balance responses
	Message  string          // human-readable provider message, when present
	Raw      json.RawMessage // the body as received (or a synthetic wrapper for non-JSON)
}

var (
	idKeys     = []string{"search_id", "id", "request_id", "ref"}
	statusKeys = []string{"status", "state", "result_status", "decision"}
	nestKeys   = []string{"result", "data"}
)

// NormalizeResponse builds an Envelope from a raw provider body. Bodies that
// are not valid JSON are wrapped into a synthetic object carrying the HTTP
// status code and a truncated copy of the text, and yield no status or id.
func NormalizeResponse(body []byte, httpStatus int) *Envelope {
	env := &Envelope{}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		env.Raw = syntheticRaw(body, httpStatus)
		return env
	}
	env.Raw = json.RawMessage(body)

	obj := unwrap(parsed)
	if obj == nil {
		return env
	}

	env.SearchID = probeString(obj, idKeys)
	env.Status = types.NormalizeStatus(probeString(obj, statusKeys))
	env.Balance = probeNumber(obj, "balance")
	env.Message = probeString(obj, []string{"message"})

	return env
}

// syntheticRaw preserves a non-JSON body as an opaque payload.
func syntheticRaw(body []byte, httpStatus int) json.RawMessage {
	text := string(body)
	if len(text) > 500 {
		text = text[:500]
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"status_code": httpStatus,
		"raw":         text,
	})
	return raw
}

// unwrap reduces the two accepted top-level shapes (object, one-element list
// of objects) to a single object, or nil when neither applies.
func unwrap(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case []interface{}:
		if len(t) > 0 {
			if obj, ok := t[0].(map[string]interface{}); ok {
				return obj
			}
		}
	}
	return nil
}

// probeString looks for the first non-empty value under any of the given keys,
// first at the top level, then one level under "result"/"data".
func probeString(obj map[string]interface{}, keys []string) string {
	if s := probeStringLevel(obj, keys); s != "" {
		return s
	}
	for _, nest := range nestKeys {
		if inner, ok := obj[nest].(map[string]interface{}); ok {
			if s := probeStringLevel(inner, keys); s != "" {
				return s
			}
		}
	}
	return ""
}

func probeStringLevel(obj map[string]interface{}, keys []string) string {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

// probeNumber looks for a numeric value under the given key, top level first,
// then one level under "result"/"data". String-encoded numbers are accepted.
func probeNumber(obj map[string]interface{}, key string) *float64 {
	if f := numberAt(obj, key); f != nil {
		return f
	}
	for _, nest := range nestKeys {
		if inner, ok := obj[nest].(map[string]interface{}); ok {
			if f := numberAt(inner, key); f != nil {
				return f
			}
		}
	}
	return nil
}

func numberAt(obj map[string]interface{}, key string) *float64 {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return &f
		}
	}
	return nil
}

// FormatBalance renders a balance for display, keeping two decimals when the
// value is numeric.
func FormatBalance(balance *float64) string {
	if balance == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *balance)
}
