package job

import "encoding/json"

// Envelope is the self-describing, driver-agnostic serialized form of a
// Job (spec §3). It is what actually lives inside a queue driver; a
// worker reconstructs the concrete Job value from it via a Registry.
type Envelope struct {
	JobID             string          `json:"job_id"`
	Class             string          `json:"class"`
	Fields            json.RawMessage `json:"fields"`
	Attempts          uint32          `json:"attempts"`
	MaxTries          uint32          `json:"max_tries"`
	TimeoutSeconds    int64           `json:"timeout_seconds"`
	RetryAfterSeconds int64           `json:"retry_after_seconds"`
}
