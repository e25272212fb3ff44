package dify

// The workflow API's response shape varies by deployment and version, so the
// envelope is mapped through ordered tiers into a tagged verdict instead of
// being decoded into one struct. First matching tier wins.

// VerdictKind tags the outcome of normalizing an envelope.
type VerdictKind int

const (
	// VerdictResult means a usable analysis text was extracted.
	VerdictResult VerdictKind = iota
	// VerdictError means the provider signalled an error or the envelope
	// carried no recognizable output.
	VerdictError
)

// Verdict is the canonical reading of one response envelope.
type Verdict struct {
	Kind    VerdictKind
	Result  string
	Message string
}

const (
	// MsgUpstreamFailed is returned when the envelope carries an explicit
	// error indicator (HTTP-style status or error code field).
	MsgUpstreamFailed = "upstream call failed; check credentials or connectivity"
	// MsgResultNotFound is returned when no known output path matched.
	MsgResultNotFound = "result not found; check output node configuration"
)

// Normalize maps an envelope to a Verdict. It is a pure function: no state,
// no panics on missing or mistyped nesting, and it is total over any input
// including nil.
func Normalize(envelope map[string]any) Verdict {
	if hasErrorIndicator(envelope) {
		return Verdict{Kind: VerdictError, Message: MsgUpstreamFailed}
	}
	if text, ok := stringAt(envelope, "data", "outputs", "result"); ok {
		return Verdict{Kind: VerdictResult, Result: text}
	}
	if text, ok := stringAt(envelope, "data", "outputs", "text"); ok {
		return Verdict{Kind: VerdictResult, Result: text}
	}
	return Verdict{Kind: VerdictError, Message: MsgResultNotFound}
}

// hasErrorIndicator reports whether the envelope is the workflow API's error
// shape: a numeric top-level status other than 200, or an error code field.
func hasErrorIndicator(envelope map[string]any) bool {
	if raw, ok := envelope["status"]; ok {
		if status, ok := raw.(float64); ok && status != 200 {
			return true
		}
	}
	if raw, ok := envelope["code"]; ok {
		if code, ok := raw.(string); ok && code != "" {
			return true
		}
	}
	return false
}

// stringAt walks nested maps along path and returns the non-empty string at
// the end, if any.
func stringAt(envelope map[string]any, path ...string) (string, bool) {
	current := any(envelope)
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[key]
		if !ok {
			return "", false
		}
	}
	text, ok := current.(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}
