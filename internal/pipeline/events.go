package pipeline

// RecordingStarted is the payload of recording-started.
type RecordingStarted struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	DeviceID  string `json:"device_id,omitempty"`
}

// ProcessingComplete is the payload of processing-complete.
type ProcessingComplete struct {
	SessionID string           `json:"session_id"`
	Mode      string           `json:"mode"`
	RawText   string           `json:"raw_text"`
	Text      string           `json:"text"`
	TimingsMS map[string]int64 `json:"timings_ms"`
	TotalMS   int64            `json:"total_ms"`
	Provider  string           `json:"provider,omitempty"`
}

// ProcessorFallback is the payload of processor-fallback.
type ProcessorFallback struct {
	UsingRaw            bool   `json:"using_raw"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	Error               string `json:"error"`
}

// Answer is the payload of answer.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NoteSaved is the payload of note-saved.
type NoteSaved struct {
	Path string `json:"path"`
}

// PipelineError is the payload of pipeline-error.
type PipelineError struct {
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
}

// WarmupComplete is the payload of warmup-complete.
type WarmupComplete struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
}
