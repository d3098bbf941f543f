package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleInt64 can unmarshal both string and int64 JSON values
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		// It's a string, try to parse as int64
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(i)
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*f = FlexibleInt64(i)
	return nil
}

func (f FlexibleInt64) Int64() int64 {
	return int64(f)
}

// FailedEnvelope is posted by the receive pipeline when an envelope could
// not be decrypted. The sender may be identified by any of the source
// fields; the first non-empty one of Source, SourceUUID and SourceNumber is
// used.
type FailedEnvelope struct {
	Source       string        `json:"source,omitempty"`
	SourceUUID   string        `json:"sourceUuid,omitempty"`
	SourceNumber string        `json:"sourceNumber,omitempty"`
	Timestamp    FlexibleInt64 `json:"timestamp"`
	GroupID      string        `json:"groupId,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

func (e *FailedEnvelope) SourceAddress() string {
	return firstAddress(e.Source, e.SourceUUID, e.SourceNumber)
}

func (e *FailedEnvelope) SenderTimestamp() int64 {
	return e.Timestamp.Int64()
}

func (e *FailedEnvelope) FailureReason() string {
	return e.Reason
}

// DecryptedMessage is posted when an envelope was decrypted, possibly after
// an earlier failure for the same message.
type DecryptedMessage struct {
	Source       string        `json:"source,omitempty"`
	SourceUUID   string        `json:"sourceUuid,omitempty"`
	SourceNumber string        `json:"sourceNumber,omitempty"`
	Timestamp    FlexibleInt64 `json:"timestamp"`
	GroupID      string        `json:"groupId,omitempty"`
	Body         string        `json:"body"`
}

func (m *DecryptedMessage) SenderAddress() string {
	return firstAddress(m.Source, m.SourceUUID, m.SourceNumber)
}

func firstAddress(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// SweepResponse reports a manual sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// ReadResponse reports how many entries a read mark changed.
type ReadResponse struct {
	Marked int `json:"marked"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
}
