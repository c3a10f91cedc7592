package model

import (
	"encoding/json"
	"fmt"
)

// MetaVersion is the schema version written with every message metadata blob.
const MetaVersion = 1

type MetaKind string

const (
	MetaNone          MetaKind = "none"
	MetaActionSummary MetaKind = "action_summary"
	MetaError         MetaKind = "error"
	MetaUnknown       MetaKind = "unknown"
)

// MessageMeta is the structured payload stored next to a conversation message.
// Exactly one of Summary or Error is meaningful, selected by Kind.
type MessageMeta struct {
	Version int            `json:"version"`
	Kind    MetaKind       `json:"kind"`
	Summary *ActionSummary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ActionSummary records what one agent turn did to the owner's data.
type ActionSummary struct {
	Created             []TaskRef `json:"tasks_created"`
	Updated             []TaskRef `json:"tasks_updated"`
	Deleted             []TaskRef `json:"tasks_deleted"`
	MemoriesSaved       []string  `json:"memories_saved"`
	ClarifyingQuestions []string  `json:"clarifying_questions"`
	Tips                []string  `json:"tips"`
	LoadWarning         *string   `json:"load_warning"`
}

func NoMeta() MessageMeta {
	return MessageMeta{Version: MetaVersion, Kind: MetaNone}
}

func SummaryMeta(summary ActionSummary) MessageMeta {
	return MessageMeta{Version: MetaVersion, Kind: MetaActionSummary, Summary: &summary}
}

func ErrorMeta(message string) MessageMeta {
	return MessageMeta{Version: MetaVersion, Kind: MetaError, Error: message}
}

func EncodeMeta(meta MessageMeta) (string, error) {
	if meta.Version == 0 {
		meta.Version = MetaVersion
	}
	if meta.Kind == "" {
		meta.Kind = MetaNone
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode message meta: %w", err)
	}
	return string(data), nil
}

// DecodeMeta reads a stored blob. Empty input is MetaNone; a version this
// build does not know decodes to MetaUnknown instead of failing.
func DecodeMeta(raw string) (MessageMeta, error) {
	if raw == "" || raw == "{}" || raw == "null" {
		return NoMeta(), nil
	}

	var envelope struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return MessageMeta{}, fmt.Errorf("decode message meta: %w", err)
	}

	switch envelope.Version {
	case 1:
		var meta MessageMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return MessageMeta{}, fmt.Errorf("decode message meta v1: %w", err)
		}
		return meta, nil
	default:
		return MessageMeta{Version: envelope.Version, Kind: MetaUnknown}, nil
	}
}
