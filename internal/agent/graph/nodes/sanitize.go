package nodes

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/graph/tools"
	"github.com/oceanchat-core/server/internal/agent/model"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// SanitizeToolCalls enforces the tool-call contract on the synthesizer
// output before anything is dispatched:
//   - unknown tool names are dropped,
//   - duplicate calls to the same tool keep only the last occurrence,
//   - file-delivery arguments the user never stated are stripped,
//   - the data product code is always derived from the extension,
//   - resample modes follow the user's wording, not the model's guess,
//   - metadata calls missing their minimal arguments are dropped.
func SanitizeToolCalls(calls []schema.ToolCall, utterance string, store *model.ParameterStore) []schema.ToolCall {
	if len(calls) == 0 {
		return calls
	}

	deduped := dedupeLastWins(calls)

	out := make([]schema.ToolCall, 0, len(deduped))
	for _, call := range deduped {
		name := call.Function.Name
		if !tools.IsRegistered(name) {
			logx.Warn().Str("tool_name", name).Msg("Dropping call to unregistered tool")
			continue
		}

		args := decodeArgs(call.Function.Arguments)
		if args == nil {
			out = append(out, call)
			continue
		}

		if name == tools.ToolGenerateDownloadCodes {
			guardDeliveryArgs(args, utterance)
		}

		if missing := missingMinimalArgs(name, args, store); len(missing) > 0 {
			logx.Warn().
				Str("tool_name", name).
				Strs("missing", missing).
				Msg("Dropping tool call missing minimal arguments")
			continue
		}

		if encoded, err := json.Marshal(args); err == nil {
			call.Function.Arguments = string(encoded)
		}
		out = append(out, call)
	}

	return out
}

// dedupeLastWins keeps one call per tool name. When the model emits the same
// tool more than once, the last call's arguments win; the surviving call
// keeps the position of the first occurrence so dispatch order is stable.
func dedupeLastWins(calls []schema.ToolCall) []schema.ToolCall {
	order := make([]string, 0, len(calls))
	last := make(map[string]schema.ToolCall, len(calls))
	for _, call := range calls {
		name := call.Function.Name
		if _, seen := last[name]; !seen {
			order = append(order, name)
		} else {
			logx.Debug().Str("tool_name", name).Msg("Duplicate tool call; keeping last arguments")
		}
		last[name] = call
	}

	out := make([]schema.ToolCall, 0, len(order))
	for _, name := range order {
		out = append(out, last[name])
	}
	return out
}

func decodeArgs(arguments string) map[string]any {
	if strings.TrimSpace(arguments) == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		logx.Warn().Err(err).Msg("Tool arguments are not a JSON object; passing through unmodified")
		return nil
	}
	return m
}

// guardDeliveryArgs applies the literal-presence rules to a download call.
// The extension survives only when the user's own words contain it, and the
// data product code is always recomputed from the extension, never trusted
// from the model.
func guardDeliveryArgs(args map[string]any, utterance string) {
	lower := strings.ToLower(utterance)

	ext := stringArg(args, model.FieldExtension)
	if ext != "" {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if !utteranceHasToken(lower, normalized) || !tools.SupportedExtension(normalized) {
			logx.Debug().Str("extension", ext).Msg("Extension not stated by user; stripping")
			delete(args, model.FieldExtension)
			ext = ""
		} else {
			args[model.FieldExtension] = normalized
			ext = normalized
		}
	}

	if ext != "" {
		args[model.FieldDataProductCode] = tools.DeriveDataProductCode(ext)
	} else {
		delete(args, model.FieldDataProductCode)
	}

	mode := tools.ClassifyResampleMode(utterance)
	if mode == tools.ResampleNone {
		delete(args, model.FieldResample)
		delete(args, model.FieldAverage)
		delete(args, model.FieldMinMax)
		delete(args, model.FieldMinMaxAvg)
	} else {
		args[model.FieldResample] = mode
	}
}

// utteranceHasToken reports whether word appears as a whole token in the
// lowercased utterance. Substring hits do not count: "format" never states
// mat, and "jsonl" never states json.
func utteranceHasToken(lower, word string) bool {
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if token == word {
			return true
		}
	}
	return false
}

// missingMinimalArgs returns the minimal argument names a call can resolve
// neither from its own arguments nor from the stored parameters.
func missingMinimalArgs(name string, args map[string]any, store *model.ParameterStore) []string {
	var missing []string
	for _, field := range tools.MinimalRequired(name) {
		if stringArg(args, field) != "" {
			continue
		}
		storeField := field
		if field == "date" {
			// The statistics tool takes a single day; a stored date range
			// start satisfies it.
			storeField = model.FieldDateFrom
		}
		if store != nil && store.Get(storeField) != "" {
			continue
		}
		missing = append(missing, field)
	}
	return missing
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
