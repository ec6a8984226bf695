package webhook

import "encoding/json"

// CallResult is the normalized view of a provider callback payload.
type CallResult struct {
	CallRef         string
	Status          string
	DurationSeconds float64
	Summary         string
}

// extractors locate the call object inside the payload. Provider payloads
// arrive with the call nested under different keys depending on the event
// type and API version, so each strategy is tried in order and the first one
// that yields a call identifier wins.
var extractors = []func(doc map[string]any) map[string]any{
	func(doc map[string]any) map[string]any { return doc },
	func(doc map[string]any) map[string]any { return childObject(doc, "call") },
	func(doc map[string]any) map[string]any { return childObject(childObject(doc, "data"), "call") },
	func(doc map[string]any) map[string]any { return childObject(childObject(doc, "message"), "call") },
}

// ParseCallResult pulls a call identifier and result fields out of a raw
// provider payload. Returns ok=false when no strategy finds a call id; the
// payload is still worth auditing in that case, just not actionable.
func ParseCallResult(raw []byte) (CallResult, bool) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return CallResult{}, false
	}

	for _, extract := range extractors {
		call := extract(doc)
		if call == nil {
			continue
		}
		id := stringField(call, "id")
		if id == "" {
			continue
		}
		res := CallResult{
			CallRef: id,
			Status:  stringField(call, "status"),
			Summary: stringField(call, "summary"),
		}
		if d, ok := numberField(call, "duration"); ok {
			res.DurationSeconds = d
		} else if d, ok := numberField(call, "durationSeconds"); ok {
			res.DurationSeconds = d
		}
		if res.Summary == "" {
			res.Summary = stringField(childObject(call, "analysis"), "summary")
		}
		// Some event shapes carry the result fields beside the call object
		// rather than inside it.
		if res.Status == "" {
			res.Status = stringField(doc, "status")
		}
		if res.Summary == "" {
			res.Summary = stringField(doc, "summary")
		}
		return res, true
	}
	return CallResult{}, false
}

func childObject(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return nil
	}
	child, _ := doc[key].(map[string]any)
	return child
}

func stringField(doc map[string]any, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

func numberField(doc map[string]any, key string) (float64, bool) {
	if doc == nil {
		return 0, false
	}
	switch v := doc[key].(type) {
	case float64:
		return v, true
	case string:
		// Tolerated: some providers stringify numerics.
		var f float64
		if err := json.Unmarshal([]byte(v), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
