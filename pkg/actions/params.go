// Package actions holds helpers shared by the action handler catalog.
package actions

import (
	"github.com/dukex/crmflow/pkg/models"
	"github.com/spf13/cast"
)

// Lookup returns the first non-empty value for key, looking in params before
// the execution data.
func Lookup(params map[string]any, execCtx *models.ExecutionContext, key string) (any, bool) {
	if v, ok := params[key]; ok && !isEmpty(v) {
		return v, true
	}

	if execCtx != nil {
		if v, ok := execCtx.Data[key]; ok && !isEmpty(v) {
			return v, true
		}
	}

	return nil, false
}

// String returns the first of keys that resolves to a non-empty string.
func String(params map[string]any, execCtx *models.ExecutionContext, keys ...string) string {
	for _, key := range keys {
		if v, ok := Lookup(params, execCtx, key); ok {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}

	return ""
}

// ContactID resolves the contact an action applies to.
func ContactID(params map[string]any, execCtx *models.ExecutionContext) string {
	return String(params, execCtx, "contactId", "leadId")
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	s, ok := v.(string)

	return ok && s == ""
}
