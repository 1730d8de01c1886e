package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Condition operators supported by the rule engine.
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpLess           = "<"
	OpIn             = "in"
)

// Action types a rule can dispatch.
const (
	ActionGrantEntitlement = "grant_entitlement"
	ActionSendEmail        = "send_email"
	ActionEnrollInDrip     = "enroll_in_drip"
	ActionAwardPoints      = "award_points"
)

// AutomationRule binds a trigger event to an action, optionally guarded by a
// condition over the event payload. Rules are operator configuration and are
// read-only to the engine at dispatch time.
type AutomationRule struct {
	gorm.Model
	Name         string `gorm:"not null" json:"name"`
	TriggerEvent string `gorm:"not null;index" json:"trigger_event"`

	Condition RuleCondition `gorm:"type:jsonb;serializer:json" json:"condition"`
	Action    RuleAction    `gorm:"type:jsonb;serializer:json" json:"action"`

	Priority int  `gorm:"default:0;index" json:"priority"` // higher runs first
	IsActive bool `gorm:"default:true;index" json:"is_active"`
}

// RuleCondition is a closed set of variants: a leaf comparison
// (Field/Op/Value), a boolean combination (All/Any), or empty, which always
// matches. Exactly one variant may be populated.
type RuleCondition struct {
	Field string          `json:"field,omitempty"` // dotted path into the event payload
	Op    string          `json:"op,omitempty"`
	Value interface{}     `json:"value,omitempty"`
	All   []RuleCondition `json:"all,omitempty"`
	Any   []RuleCondition `json:"any,omitempty"`
}

// IsEmpty reports whether the condition is absent, i.e. always matches.
func (rc RuleCondition) IsEmpty() bool {
	return rc.Field == "" && rc.Op == "" && len(rc.All) == 0 && len(rc.Any) == 0
}

// Validate rejects malformed conditions at rule-save time so dispatch never
// sees them.
func (rc RuleCondition) Validate() error {
	if rc.IsEmpty() {
		return nil
	}

	variants := 0
	if rc.Field != "" || rc.Op != "" {
		variants++
	}
	if len(rc.All) > 0 {
		variants++
	}
	if len(rc.Any) > 0 {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("condition must be exactly one of: comparison, all, any")
	}

	if len(rc.All) > 0 {
		for i, sub := range rc.All {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("all[%d]: %w", i, err)
			}
		}
		return nil
	}
	if len(rc.Any) > 0 {
		for i, sub := range rc.Any {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("any[%d]: %w", i, err)
			}
		}
		return nil
	}

	if rc.Field == "" {
		return fmt.Errorf("comparison condition requires a field")
	}
	switch rc.Op {
	case OpEqual, OpNotEqual, OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess:
		if rc.Value == nil {
			return fmt.Errorf("operator %q requires a value", rc.Op)
		}
	case OpIn:
		if _, ok := rc.Value.([]interface{}); !ok {
			return fmt.Errorf("operator %q requires a list value", OpIn)
		}
	default:
		return fmt.Errorf("unknown operator %q", rc.Op)
	}
	return nil
}

// RuleAction describes the side effect a matched rule executes. Type selects
// the variant; the remaining fields are that variant's static parameters.
type RuleAction struct {
	Type string `json:"type"`

	// grant_entitlement
	EntitlementType string `json:"entitlement_type,omitempty"`

	// send_email
	TemplateKey string `json:"template_key,omitempty"`
	Subject     string `json:"subject,omitempty"`

	// enroll_in_drip: trigger event of the target campaign
	Campaign string `json:"campaign,omitempty"`

	// award_points
	Points int    `json:"points,omitempty"`
	Reason string `json:"reason,omitempty"`

	// StopOnMatch suppresses lower-priority rules once this rule's action has
	// executed without error.
	StopOnMatch bool `json:"stop_on_match,omitempty"`
}

// Validate rejects malformed actions at rule-save time.
func (ra RuleAction) Validate() error {
	switch ra.Type {
	case ActionGrantEntitlement:
		if ra.EntitlementType == "" {
			return fmt.Errorf("grant_entitlement requires entitlement_type")
		}
	case ActionSendEmail:
		if ra.TemplateKey == "" {
			return fmt.Errorf("send_email requires template_key")
		}
	case ActionEnrollInDrip:
		if ra.Campaign == "" {
			return fmt.Errorf("enroll_in_drip requires campaign")
		}
	case ActionAwardPoints:
		if ra.Points <= 0 {
			return fmt.Errorf("award_points requires a positive points value")
		}
		if ra.Reason == "" {
			return fmt.Errorf("award_points requires a reason")
		}
	default:
		return fmt.Errorf("unknown action type %q", ra.Type)
	}
	return nil
}
