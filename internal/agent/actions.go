package agent

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Joseda-hg/taskflow/internal/model"
)

// ActionSet is what the model asked for in one answer. Every field is
// optional; absent lists are empty.
type ActionSet struct {
	Message             string
	Create              []TaskFields
	Unsorted            []TaskFields
	Update              []UpdateSpec
	Delete              DeleteSpec
	Memories            []MemorySpec
	ClarifyingQuestions []string
	Tips                []string
	LoadWarning         *string
}

// TaskFields holds the raw task fields of a create or update spec. A nil
// pointer means the model did not supply the field.
type TaskFields struct {
	Title          *string
	Description    *string
	Category       *string
	Priority       *string
	Status         *string
	Start          *string
	End            *string
	Deadline       *string
	Duration       *int
	Urgency        *float64
	AINotes        *string
	Subtasks       []model.Subtask
	IsRecurring    *bool
	RecurrenceRule *string
}

type UpdateSpec struct {
	ID     int64
	Fields TaskFields
}

// DeleteSpec is either the "all" sentinel or a list of ids.
type DeleteSpec struct {
	All bool
	IDs []int64
}

func (d DeleteSpec) Empty() bool {
	return !d.All && len(d.IDs) == 0
}

type MemorySpec struct {
	Key   string
	Value string
	Type  string
}

// decodeActionSet maps a decoded JSON object onto an ActionSet. Fields with
// an unexpected shape are dropped one by one; the object as a whole is kept.
func decodeActionSet(obj map[string]json.RawMessage) ActionSet {
	set := ActionSet{
		Create:              []TaskFields{},
		Unsorted:            []TaskFields{},
		Update:              []UpdateSpec{},
		Memories:            []MemorySpec{},
		ClarifyingQuestions: []string{},
		Tips:                []string{},
	}

	if s, ok := asString(obj["message"]); ok {
		set.Message = s
	}
	for _, raw := range asArray(obj["tasks_to_create"]) {
		if fields, ok := decodeTaskFields(raw); ok {
			set.Create = append(set.Create, fields)
		}
	}
	for _, raw := range asArray(obj["tasks_to_unsorted"]) {
		if fields, ok := decodeTaskFields(raw); ok {
			set.Unsorted = append(set.Unsorted, fields)
		}
	}
	for _, raw := range asArray(obj["tasks_to_update"]) {
		if spec, ok := decodeUpdate(raw); ok {
			set.Update = append(set.Update, spec)
		}
	}
	set.Delete = decodeDelete(obj["tasks_to_delete"])
	for _, raw := range asArray(obj["memories_to_save"]) {
		if mem, ok := decodeMemory(raw); ok {
			set.Memories = append(set.Memories, mem)
		}
	}
	set.ClarifyingQuestions = asStrings(obj["clarifying_questions"])
	set.Tips = asStrings(obj["tips"])
	if s, ok := asString(obj["load_warning"]); ok && strings.TrimSpace(s) != "" {
		set.LoadWarning = &s
	}
	return set
}

func decodeTaskFields(raw json.RawMessage) (TaskFields, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return TaskFields{}, false
	}
	return taskFieldsFrom(obj), true
}

func taskFieldsFrom(obj map[string]json.RawMessage) TaskFields {
	var f TaskFields
	f.Title = stringField(obj, "title")
	f.Description = stringField(obj, "description")
	f.Category = stringField(obj, "category")
	f.Priority = stringField(obj, "priority")
	f.Status = stringField(obj, "status")
	f.Start = stringField(obj, "start_datetime", "start")
	f.End = stringField(obj, "end_datetime", "end")
	f.Deadline = stringField(obj, "deadline")
	f.AINotes = stringField(obj, "ai_notes")
	f.RecurrenceRule = stringField(obj, "recurrence_rule")

	if n, ok := asInt(obj["duration_minutes"]); ok {
		v := int(n)
		f.Duration = &v
	}
	if v, ok := asFloat(obj["urgency_score"]); ok {
		f.Urgency = &v
	}
	if b, ok := asBool(obj["is_recurring"]); ok {
		f.IsRecurring = &b
	}
	if raw, ok := obj["subtasks"]; ok && !isNull(raw) {
		f.Subtasks = decodeSubtasks(raw)
	}
	return f
}

// decodeUpdate accepts both {"id": 1, "title": ..} and
// {"id": 1, "updates": {"title": ..}}.
func decodeUpdate(raw json.RawMessage) (UpdateSpec, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return UpdateSpec{}, false
	}

	id, ok := asInt(obj["id"])
	if !ok {
		id, ok = asInt(obj["task_id"])
	}
	if !ok || id <= 0 {
		return UpdateSpec{}, false
	}

	fieldsObj := obj
	if nested, ok := asObject(obj["updates"]); ok {
		fieldsObj = nested
	}
	return UpdateSpec{ID: id, Fields: taskFieldsFrom(fieldsObj)}, true
}

// decodeDelete accepts "all", ["all"], [1, "2"], or a single id.
func decodeDelete(raw json.RawMessage) DeleteSpec {
	var spec DeleteSpec
	if len(raw) == 0 || isNull(raw) {
		return spec
	}
	if s, ok := asString(raw); ok {
		if isAllSentinel(s) {
			spec.All = true
		} else if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && id > 0 {
			spec.IDs = append(spec.IDs, id)
		}
		return spec
	}
	if id, ok := asInt(raw); ok && id > 0 {
		spec.IDs = append(spec.IDs, id)
		return spec
	}

	seen := map[int64]bool{}
	for _, item := range asArray(raw) {
		if s, ok := asString(item); ok && isAllSentinel(s) {
			spec.All = true
			continue
		}
		if obj, ok := asObject(item); ok {
			item = obj["id"]
		}
		if id, ok := asInt(item); ok && id > 0 && !seen[id] {
			seen[id] = true
			spec.IDs = append(spec.IDs, id)
		}
	}
	return spec
}

func decodeMemory(raw json.RawMessage) (MemorySpec, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return MemorySpec{}, false
	}
	key, _ := asString(obj["key"])
	key = strings.TrimSpace(key)
	if key == "" {
		return MemorySpec{}, false
	}
	value, ok := asString(obj["value"])
	if !ok {
		// Non-string values are stored in their JSON form.
		value = strings.TrimSpace(string(obj["value"]))
		if value == "null" {
			value = ""
		}
	}
	memType, _ := asString(obj["type"])
	return MemorySpec{Key: key, Value: value, Type: memType}, true
}

func decodeSubtasks(raw json.RawMessage) []model.Subtask {
	subtasks := []model.Subtask{}
	for _, item := range asArray(raw) {
		if s, ok := asString(item); ok {
			if title := strings.TrimSpace(s); title != "" {
				subtasks = append(subtasks, model.Subtask{Title: title})
			}
			continue
		}
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		title, _ := asString(obj["title"])
		if title = strings.TrimSpace(title); title == "" {
			continue
		}
		done, _ := asBool(obj["done"])
		subtasks = append(subtasks, model.Subtask{Title: title, Done: done})
	}
	return subtasks
}

func isAllSentinel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "*", "все", "всё":
		return true
	}
	return false
}

func stringField(obj map[string]json.RawMessage, keys ...string) *string {
	for _, key := range keys {
		if s, ok := asString(obj[key]); ok {
			return &s
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func asArray(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func asStrings(raw json.RawMessage) []string {
	out := []string{}
	if s, ok := asString(raw); ok {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range asArray(raw) {
		if s, ok := asString(item); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// asInt accepts integral numbers and numeric strings.
func asInt(raw json.RawMessage) (int64, bool) {
	v, ok := asFloat(raw)
	if !ok || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, false
	}
	return int64(v), true
}

func asFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	if s, ok := asString(raw); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

func asBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if s, ok := asString(raw); ok {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return false, false
}
