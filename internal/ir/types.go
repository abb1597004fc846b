package ir

import (
	"fmt"
	"time"
)

// PromptType names the kind of prompt a task is derived from.
type PromptType string

const (
	QAPromptType          PromptType = "qaPrompt"
	ClozePromptType       PromptType = "clozePrompt"
	ApplicationPromptType PromptType = "applicationPrompt"
)

// ValidPromptTypes lists the prompt types accepted on ingress.
var ValidPromptTypes = map[PromptType]bool{
	QAPromptType:          true,
	ClozePromptType:       true,
	ApplicationPromptType: true,
}

// Prompt is a content-addressed learning prompt. Body holds the
// type-specific fields (question/answer, cloze body, variants).
type Prompt struct {
	Type PromptType `json:"prompt_type" yaml:"prompt_type"`
	Body IRObject   `json:"body" yaml:"body"`
}

// ActionLogType distinguishes the kinds of review events.
type ActionLogType string

const (
	IngestActionLogType         ActionLogType = "ingest"
	RepetitionActionLogType     ActionLogType = "repetition"
	RescheduleActionLogType     ActionLogType = "reschedule"
	DeleteActionLogType         ActionLogType = "delete"
	UpdateMetadataActionLogType ActionLogType = "updateMetadata"
)

// ValidActionLogTypes lists the action log types accepted on ingress.
var ValidActionLogTypes = map[ActionLogType]bool{
	IngestActionLogType:         true,
	RepetitionActionLogType:     true,
	RescheduleActionLogType:     true,
	DeleteActionLogType:         true,
	UpdateMetadataActionLogType: true,
}

// RepetitionOutcome is the result a learner reported for one review.
type RepetitionOutcome string

const (
	Remembered RepetitionOutcome = "remembered"
	Forgotten  RepetitionOutcome = "forgotten"
	Skipped    RepetitionOutcome = "skipped"
)

// ValidRepetitionOutcomes lists the outcomes accepted on repetition logs.
var ValidRepetitionOutcomes = map[RepetitionOutcome]bool{
	Remembered: true,
	Forgotten:  true,
	Skipped:    true,
}

// ServerTimestamp is the acceptance time assigned by the storage layer.
// Ordering is by Seconds, then Nanoseconds; the store guarantees distinct
// values for distinct accepted logs even within the same second.
type ServerTimestamp struct {
	Seconds     int64 `json:"seconds" yaml:"seconds"`
	Nanoseconds int64 `json:"nanoseconds" yaml:"nanoseconds"`
}

// ServerTimestampFromTime converts a wall-clock time.
func ServerTimestampFromTime(t time.Time) ServerTimestamp {
	return ServerTimestamp{Seconds: t.Unix(), Nanoseconds: int64(t.Nanosecond())}
}

// Compare returns -1, 0 or 1.
func (t ServerTimestamp) Compare(o ServerTimestamp) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Nanoseconds < o.Nanoseconds:
		return -1
	case t.Nanoseconds > o.Nanoseconds:
		return 1
	}
	return 0
}

// After reports whether t is strictly later than o.
func (t ServerTimestamp) After(o ServerTimestamp) bool {
	return t.Compare(o) > 0
}

// IsZero reports whether the timestamp was never assigned.
func (t ServerTimestamp) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

// Millis returns the timestamp truncated to milliseconds.
func (t ServerTimestamp) Millis() int64 {
	return t.Seconds*1000 + t.Nanoseconds/1_000_000
}

func (t ServerTimestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanoseconds)
}

// ActionLog is one immutable review event for a task. ID is derived from
// every field except ID and ServerTimestamp (see ActionLogID).
type ActionLog struct {
	ID        string        `json:"id,omitempty" yaml:"id,omitempty"`
	Type      ActionLogType `json:"action_log_type" yaml:"action_log_type"`
	TaskID    string        `json:"task_id" yaml:"task_id"`
	ParentIDs []string      `json:"parent_action_log_ids" yaml:"parent_action_log_ids"`

	// TimestampMillis is the client's logical time for the event.
	TimestampMillis int64 `json:"timestamp_millis" yaml:"timestamp_millis"`

	// Repetition payload.
	Outcome RepetitionOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Context string            `json:"context,omitempty" yaml:"context,omitempty"`

	// Reschedule payload.
	NewTimestampMillis int64 `json:"new_timestamp_millis,omitempty" yaml:"new_timestamp_millis,omitempty"`

	// Ingest provenance or updateMetadata patch.
	Metadata IRObject `json:"metadata,omitempty" yaml:"-"`

	AttachmentIDs []string `json:"attachment_ids,omitempty" yaml:"attachment_ids,omitempty"`

	ServerTimestamp ServerTimestamp `json:"server_timestamp" yaml:"server_timestamp,omitempty"`
}

// AppendStatus reports whether an append inserted a new record.
type AppendStatus string

const (
	Stored        AppendStatus = "stored"
	AlreadyExists AppendStatus = "alreadyExists"
)

// AppendResult is returned by action log stores. Log carries the
// server-assigned timestamp (the original one for AlreadyExists).
type AppendResult struct {
	Status AppendStatus
	Log    ActionLog
}

// PromptStateCache is the materialized scheduling state of one task.
// State is opaque outside the scheduler that produced it. Revision is owned
// by the cache store and increments on every successful write.
type PromptStateCache[S any] struct {
	TaskID                   string          `json:"task_id"`
	State                    S               `json:"state"`
	LatestLogServerTimestamp ServerTimestamp `json:"latest_log_server_timestamp"`
	LatestLogID              string          `json:"latest_log_id"`
	Revision                 int64           `json:"revision"`
}

// AttachmentMimeType is a supported attachment content type.
type AttachmentMimeType string

const (
	PNGMimeType  AttachmentMimeType = "image/png"
	JPEGMimeType AttachmentMimeType = "image/jpeg"
	SVGMimeType  AttachmentMimeType = "image/svg+xml"
)

var attachmentExtensions = map[AttachmentMimeType]string{
	PNGMimeType:  "png",
	JPEGMimeType: "jpg",
	SVGMimeType:  "svg",
}

// FileExtension returns the file extension for a mime type, or "" when the
// type is unsupported.
func (m AttachmentMimeType) FileExtension() string {
	return attachmentExtensions[m]
}

// AttachmentMimeTypeForExtension maps a file extension (without the dot)
// back to a supported mime type.
func AttachmentMimeTypeForExtension(ext string) (AttachmentMimeType, bool) {
	if ext == "jpeg" {
		ext = "jpg"
	}
	for m, e := range attachmentExtensions {
		if e == ext {
			return m, true
		}
	}
	return "", false
}

// AttachmentStoreResult is returned when storing attachment bytes.
type AttachmentStoreResult struct {
	Status AppendStatus `json:"status"`
	ID     string       `json:"id"`
	URL    string       `json:"url"`
}
