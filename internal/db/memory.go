package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Joseda-hg/taskflow/internal/model"
)

const memoryColumns = `id, owner_id, key, value, memory_type, confidence, created_at, updated_at`

// UpsertMemory stores a fact under key. An existing key keeps its row: the
// value is overwritten and updated_at refreshed. New facts get confidence 1.0.
func (s *Store) UpsertMemory(ctx context.Context, owner int64, key, value string, memType model.MemoryType) (model.MemoryFact, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.MemoryFact{}, fmt.Errorf("memory key is required")
	}
	if memType == "" {
		memType = model.MemoryFactType
	}

	now := s.now().UTC()
	if _, err := s.q.ExecContext(ctx, `INSERT INTO memory_facts (owner_id, key, value, memory_type, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1.0, ?, ?)
		ON CONFLICT (owner_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, string(memType), now, now); err != nil {
		return model.MemoryFact{}, fmt.Errorf("upsert memory %q: %w", key, err)
	}

	return s.GetMemory(ctx, owner, key)
}

func (s *Store) GetMemory(ctx context.Context, owner int64, key string) (model.MemoryFact, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memory_facts WHERE owner_id = ? AND key = ?`, owner, key)
	fact, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MemoryFact{}, fmt.Errorf("memory %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return model.MemoryFact{}, fmt.Errorf("get memory %q: %w", key, err)
	}
	return fact, nil
}

func (s *Store) ListMemories(ctx context.Context, owner int64) ([]model.MemoryFact, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memory_facts WHERE owner_id = ? ORDER BY key`, owner)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	facts := []model.MemoryFact{}
	for rows.Next() {
		fact, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// MemoryMap returns the owner's facts as key -> value.
func (s *Store) MemoryMap(ctx context.Context, owner int64) (map[string]string, error) {
	facts, err := s.ListMemories(ctx, owner)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(facts))
	for _, fact := range facts {
		result[fact.Key] = fact.Value
	}
	return result, nil
}

func (s *Store) DeleteMemory(ctx context.Context, owner, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM memory_facts WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete memory %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanMemory(row rowScanner) (model.MemoryFact, error) {
	var (
		fact    model.MemoryFact
		memType string
	)
	if err := row.Scan(&fact.ID, &fact.OwnerID, &fact.Key, &fact.Value, &memType, &fact.Confidence, &fact.CreatedAt, &fact.UpdatedAt); err != nil {
		return model.MemoryFact{}, err
	}
	fact.Type = model.MemoryType(memType)
	fact.CreatedAt = fact.CreatedAt.UTC()
	fact.UpdatedAt = fact.UpdatedAt.UTC()
	return fact, nil
}
