package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DefaultDelay replaces a zero or absent delay duration.
const DefaultDelay = 1000 * time.Millisecond

var ErrInvalidDuration = errors.New("invalid delay duration")

// TriggerConfig is the typed configuration of a trigger node.
type TriggerConfig struct {
	TriggerType TriggerType    `mapstructure:"triggerType"`
	Cron        string         `mapstructure:"cron"`
	Extra       map[string]any `mapstructure:",remain"`
}

// ActionConfig is the typed configuration of an action node. Everything
// besides the discriminator and retry policy is handed to the action handler.
type ActionConfig struct {
	ActionType   string         `mapstructure:"actionType"`
	MaxRetries   int            `mapstructure:"maxRetries"`
	RetryDelayMs int            `mapstructure:"retryDelayMs"`
	Params       map[string]any `mapstructure:",remain"`
}

// ConditionConfig is a single declarative predicate.
type ConditionConfig struct {
	Field    string `mapstructure:"field"`
	Operator string `mapstructure:"operator"`
	Value    any    `mapstructure:"value"`
}

// DelayConfig accepts either durationMs or duration. A numeric duration is
// read as milliseconds; a string may be a Go duration ("5m") or milliseconds.
type DelayConfig struct {
	DurationMs *float64 `mapstructure:"durationMs"`
	Duration   any      `mapstructure:"duration"`
}

// AIConfig is the typed configuration of an ai node.
type AIConfig struct {
	Task      string         `mapstructure:"task"`
	Prompt    string         `mapstructure:"prompt"`
	Input     map[string]any `mapstructure:"input"`
	OutputKey string         `mapstructure:"outputKey"`
}

// Wait resolves the delay, substituting DefaultDelay for zero or absent values.
func (c DelayConfig) Wait() (time.Duration, error) {
	if c.DurationMs != nil && *c.DurationMs > 0 {
		return time.Duration(*c.DurationMs * float64(time.Millisecond)), nil
	}

	switch v := c.Duration.(type) {
	case nil:
		return DefaultDelay, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return DefaultDelay, nil
		}

		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			return msOrDefault(ms), nil
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, v)
		}

		if d <= 0 {
			return DefaultDelay, nil
		}

		return d, nil
	case int:
		return msOrDefault(float64(v)), nil
	case int64:
		return msOrDefault(float64(v)), nil
	case float64:
		return msOrDefault(v), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidDuration, v)
	}
}

func msOrDefault(ms float64) time.Duration {
	if ms <= 0 {
		return DefaultDelay
	}

	return time.Duration(ms * float64(time.Millisecond))
}

// DecodeTriggerConfig decodes a trigger node configuration.
func DecodeTriggerConfig(raw map[string]any) (TriggerConfig, error) {
	var cfg TriggerConfig

	return cfg, decode(raw, &cfg)
}

// DecodeActionConfig decodes an action node configuration.
func DecodeActionConfig(raw map[string]any) (ActionConfig, error) {
	var cfg ActionConfig

	err := decode(raw, &cfg)
	if cfg.Params == nil {
		cfg.Params = make(map[string]any)
	}

	return cfg, err
}

// DecodeConditionConfig decodes a condition node configuration.
func DecodeConditionConfig(raw map[string]any) (ConditionConfig, error) {
	var cfg ConditionConfig

	return cfg, decode(raw, &cfg)
}

// DecodeDelayConfig decodes a delay node configuration.
func DecodeDelayConfig(raw map[string]any) (DelayConfig, error) {
	var cfg DelayConfig

	return cfg, decode(raw, &cfg)
}

// DecodeAIConfig decodes an ai node configuration.
func DecodeAIConfig(raw map[string]any) (AIConfig, error) {
	var cfg AIConfig

	return cfg, decode(raw, &cfg)
}

// DecodeParams decodes loosely typed action params into out.
func DecodeParams(params map[string]any, out any) error {
	return decode(params, out)
}

func decode(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}

	if raw == nil {
		raw = map[string]any{}
	}

	return decoder.Decode(raw)
}
