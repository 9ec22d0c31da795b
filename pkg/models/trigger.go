package models

import "time"

// TriggerType names an external occurrence that can start workflows.
type TriggerType string

const (
	TriggerContactAdded        TriggerType = "contact_added"
	TriggerMessageReceived     TriggerType = "message_received"
	TriggerLeadScoreChange     TriggerType = "lead_score_change"
	TriggerPipelineStageChange TriggerType = "pipeline_stage_change"
	TriggerManual              TriggerType = "manual"
	TriggerWebhook             TriggerType = "webhook"
	TriggerSchedule            TriggerType = "schedule"
)

// TriggerTypes lists the built-in trigger types.
var TriggerTypes = []TriggerType{
	TriggerContactAdded,
	TriggerMessageReceived,
	TriggerLeadScoreChange,
	TriggerPipelineStageChange,
	TriggerManual,
	TriggerWebhook,
	TriggerSchedule,
}

// IsValid reports whether t is a built-in trigger type.
func (t TriggerType) IsValid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// TriggerEvent is a transient external occurrence handed to trigger listeners.
type TriggerEvent struct {
	Type      TriggerType    `json:"type"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}
