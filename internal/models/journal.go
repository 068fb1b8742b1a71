/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// DirectiveRecord is the outcome of one handled directive.
type DirectiveRecord struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp       time.Time      `gorm:"index:idx_directive_timestamp;not null" json:"timestamp"`
	NodeID          string         `gorm:"type:varchar(128)" json:"node_id,omitempty"`
	DialogRequestID string         `gorm:"type:varchar(128);index:idx_directive_dialog" json:"dialog_request_id"`
	MessageID       string         `gorm:"type:varchar(128);index:idx_directive_message" json:"message_id"`
	Type            string         `gorm:"type:varchar(128);index:idx_directive_type;not null" json:"type"`
	Medium          string         `gorm:"type:varchar(16)" json:"medium"`
	Blocking        bool           `json:"blocking"`
	Result          string         `gorm:"type:varchar(16);index:idx_directive_result;not null" json:"result"`
	Description     string         `gorm:"type:text" json:"description,omitempty"`
	Details         map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (DirectiveRecord) TableName() string {
	return "directive_records"
}

// FocusTransition is one channel changing focus state.
type FocusTransition struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index:idx_focus_timestamp;not null" json:"timestamp"`
	NodeID    string         `gorm:"type:varchar(128)" json:"node_id,omitempty"`
	Channel   string         `gorm:"type:varchar(128);index:idx_focus_channel;not null" json:"channel"`
	State     string         `gorm:"type:varchar(16);not null" json:"state"`
	Previous  string         `gorm:"type:varchar(16)" json:"previous"`
	Request   int            `json:"request"`
	Maintain  int            `json:"maintain"`
	Details   map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (FocusTransition) TableName() string {
	return "focus_transitions"
}

// LayerRelease is one play layer leaving the play stack.
type LayerRelease struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp       time.Time      `gorm:"index:idx_layer_timestamp;not null" json:"timestamp"`
	NodeID          string         `gorm:"type:varchar(128)" json:"node_id,omitempty"`
	DialogRequestID string         `gorm:"type:varchar(128);index:idx_layer_dialog" json:"dialog_request_id"`
	MessageID       string         `gorm:"type:varchar(128)" json:"message_id"`
	Property        string         `gorm:"type:varchar(64);not null" json:"property"`
	PlayServiceID   string         `gorm:"type:varchar(256)" json:"play_service_id,omitempty"`
	Reason          string         `gorm:"type:varchar(32);not null" json:"reason"`
	Details         map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (LayerRelease) TableName() string {
	return "layer_releases"
}

// JournalModels lists the tables owned by the journal, in migration order.
func JournalModels() []any {
	return []any{&DirectiveRecord{}, &FocusTransition{}, &LayerRelease{}}
}
