// Package template renders Go text/template strings against an execution's data.
package template

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/crmflow/pkg/models"
)

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Scope builds the template data for an execution: the data bag at the top
// level, plus "vars" and "execution" unless the data already defines them.
func Scope(execCtx *models.ExecutionContext) map[string]any {
	scope := make(map[string]any, len(execCtx.Data)+2)
	maps.Copy(scope, execCtx.Data)

	if _, ok := scope["vars"]; !ok {
		scope["vars"] = execCtx.Variables
	}

	if _, ok := scope["execution"]; !ok {
		scope["execution"] = map[string]any{
			"id":          execCtx.ExecutionID,
			"workflow_id": execCtx.WorkflowID,
			"step":        execCtx.Metadata.CurrentStep,
		}
	}

	return scope
}

// RenderString executes templateStr against data and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	tmpl, err := template.New("content").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render executes templateStr and converts the output to JSON, a number or a
// bool when it parses as one.
func Render(templateStr string, data any) (any, error) {
	out, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(out)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return out, nil
}

// RenderParams renders every string value of params containing a template
// action, recursing into nested maps. Other values are copied as is.
func RenderParams(params map[string]any, data any) (map[string]any, error) {
	rendered := make(map[string]any, len(params))

	for key, value := range params {
		switch v := value.(type) {
		case string:
			if !NeedsTemplating(v) {
				rendered[key] = v

				continue
			}

			out, err := Render(v, data)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", key, err)
			}

			rendered[key] = out
		case map[string]any:
			nested, err := RenderParams(v, data)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", key, err)
			}

			rendered[key] = nested
		default:
			rendered[key] = value
		}
	}

	return rendered, nil
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}

		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}
