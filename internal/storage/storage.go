// Package storage persists per-guild settings as JSON records in a
// single-file datastore.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/datastore"
)

// ErrSettingsNotFound is returned when a guild has no stored settings.
var ErrSettingsNotFound = errors.New("no settings stored for guild")

// GuildSettings holds per-guild playback behavior.
type GuildSettings struct {
	// SecondsToWaitAfterQueueEmpties is how long the bot stays in the
	// voice channel after the queue runs out. Zero disables the
	// auto-disconnect entirely.
	SecondsToWaitAfterQueueEmpties int `json:"seconds_to_wait_after_queue_empties"`
}

// Record is the per-guild document persisted in the datastore.
type Record struct {
	Settings *GuildSettings `json:"settings,omitempty"`
}

type Storage struct {
	ds *datastore.DataStore
}

// New opens the datastore. ctx controls its background save loop, so
// it must outlive the Storage and be cancelled before Close.
func New(ctx context.Context, filePath string) (*Storage, error) {
	ds, err := datastore.New(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// getGuildRecord reads and decodes the record for a guild.
func (s *Storage) getGuildRecord(guildID string) (*Record, bool, error) {
	var record Record
	exists, err := s.ds.Get(guildID, &record)
	if err != nil {
		return nil, false, fmt.Errorf("decode guild record: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	return &record, true, nil
}

// GetSettings returns the stored settings for a guild, or
// ErrSettingsNotFound when the guild has none.
func (s *Storage) GetSettings(guildID string) (GuildSettings, error) {
	record, exists, err := s.getGuildRecord(guildID)
	if err != nil {
		return GuildSettings{}, err
	}
	if !exists || record.Settings == nil {
		return GuildSettings{}, fmt.Errorf("%w: %s", ErrSettingsNotFound, guildID)
	}
	return *record.Settings, nil
}

// SetSettings stores settings for a guild, creating the record if needed.
func (s *Storage) SetSettings(guildID string, settings GuildSettings) error {
	record, _, err := s.getGuildRecord(guildID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &Record{}
	}
	record.Settings = &settings
	if err := s.ds.Set(guildID, record); err != nil {
		return fmt.Errorf("store guild record: %w", err)
	}
	return nil
}
