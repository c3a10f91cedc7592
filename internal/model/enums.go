package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
)

type Category string

const (
	CategoryWork     Category = "work"
	CategoryStudy    Category = "study"
	CategoryHealth   Category = "health"
	CategoryPersonal Category = "personal"
	CategoryFinance  Category = "finance"
	CategorySocial   Category = "social"
	CategoryUnsorted Category = "unsorted"
)

var Categories = []Category{
	CategoryWork, CategoryStudy, CategoryHealth, CategoryPersonal,
	CategoryFinance, CategorySocial, CategoryUnsorted,
}

func ParseCategory(value string) (Category, error) {
	c := Category(normalize(value))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, value)
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

func ParsePriority(value string) (Priority, error) {
	p := Priority(normalize(value))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, value)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
	StatusPostponed  Status = "postponed"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusOverdue, StatusPostponed}

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ReplaceAll(normalize(value), "-", "_"))
	if s == "inprogress" {
		s = StatusInProgress
	}
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
}

// Sticky statuses are never changed by the derivation pass.
func (s Status) Sticky() bool {
	return s == StatusCompleted || s == StatusPostponed
}

type MemoryType string

const (
	MemoryPreference MemoryType = "preference"
	MemoryFactType   MemoryType = "fact"
	MemoryPattern    MemoryType = "pattern"
	MemoryTip        MemoryType = "tip"
)

// ParseMemoryType falls back to fact for anything unknown.
func ParseMemoryType(value string) MemoryType {
	switch t := MemoryType(normalize(value)); t {
	case MemoryPreference, MemoryFactType, MemoryPattern, MemoryTip:
		return t
	default:
		return MemoryFactType
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice"
	KindFile  MessageKind = "file"
)

// ParseMessageKind maps unknown kinds to text.
func ParseMessageKind(value string) MessageKind {
	switch k := MessageKind(normalize(value)); k {
	case KindVoice, KindFile:
		return k
	default:
		return KindText
	}
}

func normalize(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}
