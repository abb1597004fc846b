package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix allows migrating the algorithm later.
const (
	DomainPrompt     = "reviewlog/prompt/" + SchemaVersion
	DomainTask       = "reviewlog/task/" + SchemaVersion
	DomainActionLog  = "reviewlog/action_log/" + SchemaVersion
	DomainAttachment = "reviewlog/attachment/" + SchemaVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PromptID returns the content-addressed identifier of a prompt.
func PromptID(p Prompt) (string, error) {
	body := p.Body
	if body == nil {
		body = IRObject{}
	}
	canonical, err := MarshalCanonical(IRObject{
		"prompt_type": IRString(p.Type),
		"body":        body,
	})
	if err != nil {
		return "", fmt.Errorf("PromptID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPrompt, canonical), nil
}

// PromptTaskID derives the task identifier from a prompt identifier, its
// type and optional task parameters (e.g. the cloze deletion index).
// Nil and empty parameters produce the same identifier.
func PromptTaskID(promptID string, promptType PromptType, params IRObject) (string, error) {
	obj := IRObject{
		"prompt_id":   IRString(promptID),
		"prompt_type": IRString(promptType),
	}
	if len(params) > 0 {
		obj["prompt_parameters"] = params
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("PromptTaskID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTask, canonical), nil
}

// ActionLogContent returns the canonical JSON of everything in the log
// that contributes to its identity. ID and ServerTimestamp are excluded.
func ActionLogContent(log ActionLog) ([]byte, error) {
	parents := make(IRArray, len(log.ParentIDs))
	for i, p := range log.ParentIDs {
		parents[i] = IRString(p)
	}
	obj := IRObject{
		"action_log_type":       IRString(log.Type),
		"task_id":               IRString(log.TaskID),
		"parent_action_log_ids": parents,
		"timestamp_millis":      IRInt(log.TimestampMillis),
	}
	if log.Outcome != "" {
		obj["outcome"] = IRString(log.Outcome)
	}
	if log.Context != "" {
		obj["context"] = IRString(log.Context)
	}
	if log.NewTimestampMillis != 0 {
		obj["new_timestamp_millis"] = IRInt(log.NewTimestampMillis)
	}
	if len(log.Metadata) > 0 {
		obj["metadata"] = log.Metadata
	}
	if len(log.AttachmentIDs) > 0 {
		ids := make(IRArray, len(log.AttachmentIDs))
		for i, id := range log.AttachmentIDs {
			ids[i] = IRString(id)
		}
		obj["attachment_ids"] = ids
	}
	return MarshalCanonical(obj)
}

// ActionLogID returns the content-addressed identifier of an action log.
func ActionLogID(log ActionLog) (string, error) {
	canonical, err := ActionLogContent(log)
	if err != nil {
		return "", fmt.Errorf("ActionLogID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainActionLog, canonical), nil
}

// AttachmentID returns the content-addressed identifier of attachment bytes.
// The mime type is not part of the identity.
func AttachmentID(contents []byte) string {
	return hashWithDomain(DomainAttachment, contents)
}

// MustPromptID is like PromptID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPromptID(p Prompt) string {
	id, err := PromptID(p)
	if err != nil {
		panic(err)
	}
	return id
}

// MustPromptTaskID is like PromptTaskID but panics on error.
func MustPromptTaskID(promptID string, promptType PromptType, params IRObject) string {
	id, err := PromptTaskID(promptID, promptType, params)
	if err != nil {
		panic(err)
	}
	return id
}

// MustActionLogID is like ActionLogID but panics on error.
func MustActionLogID(log ActionLog) string {
	id, err := ActionLogID(log)
	if err != nil {
		panic(err)
	}
	return id
}
