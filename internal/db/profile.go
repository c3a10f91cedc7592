package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Joseda-hg/taskflow/internal/model"
)

// EnsureProfile creates the owner's profile with defaults if it does not
// exist yet. An existing profile is left alone.
func (s *Store) EnsureProfile(ctx context.Context, owner int64, timezone string) (model.UserProfile, error) {
	profile := model.DefaultProfile(owner)
	profile.Timezone = timezone

	now := s.now().UTC()
	if _, err := s.q.ExecContext(ctx, `INSERT INTO user_profiles (owner_id, name, max_daily_hours, wake_time, sleep_time, timezone, preferences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '{}', ?, ?)
		ON CONFLICT (owner_id) DO NOTHING`,
		owner, profile.Name, profile.MaxDailyHours, profile.WakeTime, profile.SleepTime, profile.Timezone, now, now); err != nil {
		return model.UserProfile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return s.GetProfile(ctx, owner)
}

func (s *Store) GetProfile(ctx context.Context, owner int64) (model.UserProfile, error) {
	var (
		profile                  model.UserProfile
		work, study, preferences string
	)
	err := s.q.QueryRowContext(ctx, `SELECT owner_id, name, email, occupation, workplace, work_schedule, study_schedule,
		max_daily_hours, health_notes, wake_time, sleep_time, timezone, preferences, created_at, updated_at
		FROM user_profiles WHERE owner_id = ?`, owner).Scan(
		&profile.OwnerID, &profile.Name, &profile.Email, &profile.Occupation, &profile.Workplace, &work, &study,
		&profile.MaxDailyHours, &profile.HealthNotes, &profile.WakeTime, &profile.SleepTime, &profile.Timezone,
		&preferences, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProfile{}, fmt.Errorf("profile %d: %w", owner, ErrNotFound)
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("get profile %d: %w", owner, err)
	}

	if err := decodeJSON(work, &profile.WorkSchedule); err != nil {
		return model.UserProfile{}, fmt.Errorf("decode work schedule: %w", err)
	}
	if err := decodeJSON(study, &profile.StudySchedule); err != nil {
		return model.UserProfile{}, fmt.Errorf("decode study schedule: %w", err)
	}
	profile.Preferences = map[string]any{}
	if err := decodeJSON(preferences, &profile.Preferences); err != nil {
		return model.UserProfile{}, fmt.Errorf("decode preferences: %w", err)
	}
	profile.CreatedAt = profile.CreatedAt.UTC()
	profile.UpdatedAt = profile.UpdatedAt.UTC()
	return profile, nil
}

// UpdateProfile merges patch into the stored profile. Only supplied fields
// overwrite; a missing profile is created with defaults first.
func (s *Store) UpdateProfile(ctx context.Context, owner int64, patch model.ProfilePatch) (model.UserProfile, error) {
	var updated model.UserProfile
	err := s.WithTx(ctx, func(tx *Store) error {
		profile, err := tx.EnsureProfile(ctx, owner, "")
		if err != nil {
			return err
		}
		patch.Apply(&profile)

		work, err := encodeJSON(profile.WorkSchedule, "{}")
		if err != nil {
			return fmt.Errorf("encode work schedule: %w", err)
		}
		study, err := encodeJSON(profile.StudySchedule, "{}")
		if err != nil {
			return fmt.Errorf("encode study schedule: %w", err)
		}
		preferences, err := encodeJSON(profile.Preferences, "{}")
		if err != nil {
			return fmt.Errorf("encode preferences: %w", err)
		}

		if _, err := tx.q.ExecContext(ctx, `UPDATE user_profiles SET
			name = ?, email = ?, occupation = ?, workplace = ?, work_schedule = ?, study_schedule = ?,
			max_daily_hours = ?, health_notes = ?, wake_time = ?, sleep_time = ?, timezone = ?, preferences = ?,
			updated_at = ?
			WHERE owner_id = ?`,
			profile.Name, profile.Email, profile.Occupation, profile.Workplace, work, study,
			profile.MaxDailyHours, profile.HealthNotes, profile.WakeTime, profile.SleepTime, profile.Timezone, preferences,
			tx.now().UTC(), owner); err != nil {
			return fmt.Errorf("update profile %d: %w", owner, err)
		}

		updated, err = tx.GetProfile(ctx, owner)
		return err
	})
	return updated, err
}
