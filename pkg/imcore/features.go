// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imcore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FeatureFlags toggle individual normalizer behaviors. Each flag gates
// exactly one policy; see the listener for the behavior behind each.
type FeatureFlags struct {
	// WithholdDupes suppresses redundant deliveries of the same logical item
	// (nonce dedupe). Failed sends are exempt, since the failure state may
	// only become known after the first delivery.
	WithholdDupes bool `yaml:"withhold_dupes"`

	// WithholdPartialFailures suppresses self-sent items that report a failed
	// send progress but no error code yet — the final code is still coming.
	WithholdPartialFailures bool `yaml:"withhold_partial_failures"`

	// DropSpamMessages drops items the daemon flagged as spam.
	DropSpamMessages bool `yaml:"drop_spam_messages"`

	// UseSMSReadBuffer tracks recently read message GUIDs so an SMS relay
	// message arriving after its reflected read receipt can still recognize
	// it was already read.
	UseSMSReadBuffer bool `yaml:"use_sms_read_buffer"`

	// RepairCorruptedLinks allows the registry to re-point a message-ID
	// reverse-lookup entry when authoritative chat properties disagree with
	// it. Off, the first writer always wins.
	RepairCorruptedLinks bool `yaml:"repair_corrupted_links"`

	// PrewarmItemRules warms daemon item-processing rules for all chats in
	// the background once initial setup completes.
	PrewarmItemRules bool `yaml:"prewarm_item_rules"`
}

// DefaultFeatureFlags returns the documented defaults: everything on.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		WithholdDupes:           true,
		WithholdPartialFailures: true,
		DropSpamMessages:        true,
		UseSMSReadBuffer:        true,
		RepairCorruptedLinks:    true,
		PrewarmItemRules:        true,
	}
}

// Flags is a process-wide feature flag holder with atomic swap semantics, so
// a config reload never tears a read mid-callback.
type Flags struct {
	current atomic.Pointer[FeatureFlags]
}

// NewFlags returns a holder seeded with the given flags.
func NewFlags(flags FeatureFlags) *Flags {
	f := &Flags{}
	f.Store(flags)
	return f
}

// Current returns the active flag set.
func (f *Flags) Current() FeatureFlags {
	return *f.current.Load()
}

// Store replaces the active flag set.
func (f *Flags) Store(flags FeatureFlags) {
	f.current.Store(&flags)
}

// LoadFile reads a yaml flag file over the defaults. Keys absent from the
// file keep their default values.
func (f *Flags) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read feature flags: %w", err)
	}
	flags := DefaultFeatureFlags()
	if err = yaml.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse feature flags: %w", err)
	}
	f.Store(flags)
	return nil
}

// Watch reloads the flag file whenever it changes, until ctx is cancelled.
// Reload failures keep the previous flag set.
func (f *Flags) Watch(ctx context.Context, path string, log zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create flag watcher: %w", err)
	}
	if err = watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
					continue
				}
				if err := f.LoadFile(path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Feature flag reload failed, keeping previous flags")
				} else {
					log.Info().Str("path", path).Msg("Reloaded feature flags")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Feature flag watcher error")
			}
		}
	}()
	return nil
}
