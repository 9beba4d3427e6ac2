package protocol

// Error codes carried in error responses and pipeline-error events.
const (
	CodeBusy                = "BUSY"
	CodeMicMuted            = "MIC_MUTED"
	CodeDeviceError         = "DEVICE_ERROR"
	CodeProtocolError       = "PROTOCOL_ERROR"
	CodeConfigurationError  = "CONFIGURATION_ERROR"
	CodeUnknownCommand      = "UNKNOWN_COMMAND"
	CodeInvalidParams       = "INVALID_PARAMS"
	CodeBackendTransient    = "BACKEND_TRANSIENT"
	CodeBackendPermanent    = "BACKEND_PERMANENT"
	CodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	CodeDeliveryFailed      = "DELIVERY_FAILED"
	CodeInternal            = "INTERNAL"
)

// Event names.
const (
	EventReady              = "ready"
	EventStateChanged       = "state-changed"
	EventRecordingStarted   = "recording-started"
	EventProcessingComplete = "processing-complete"
	EventProcessorFallback  = "processor-fallback"
	EventAnswer             = "answer"
	EventNoteSaved          = "note-saved"
	EventPipelineError      = "pipeline-error"
	EventWarmupComplete     = "warmup-complete"
)

// Command names accepted on the line channel.
const (
	CommandStartRecording     = "start_recording"
	CommandStopRecording      = "stop_recording"
	CommandCancelRecording    = "cancel_recording"
	CommandStatus             = "status"
	CommandConfigure          = "configure"
	CommandHealthCheck        = "health_check"
	CommandInjectText         = "inject_text"
	CommandQuickWarmup        = "quick_warmup"
	CommandSetPrivacySettings = "set_privacy_settings"
	CommandGetHistory         = "get_history"
	CommandShutdown           = "shutdown"
)
