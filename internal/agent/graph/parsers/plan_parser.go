package parsers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oceanchat-core/server/internal/agent/graph/tools"
	"github.com/oceanchat-core/server/internal/agent/model"
	errx "github.com/oceanchat-core/server/internal/core/error"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxRecords    = 200       // maximum number of records to process
	maxTupleLen   = 8 * 1024  // 8KB per tuple
	maxErrSnippet = 200       // limit error snippet size
)

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	// enforce a sane upper bound per record
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	// remove the outermost parens only
	inner := s[1 : len(s)-1]
	// limit splitting to at most 3 segments so descriptions can contain delimiters
	parts := strings.SplitN(inner, tupDelim, 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func mustValidUTF8(s string, name string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s invalid utf8", name)
	}
	return nil
}

// ParsePlan decodes the planner model's delimited-tuple output into a
// PlanningResult. Malformed records are skipped and reported through
// ParsingMetadata; tool names outside the registered set are dropped so a
// hallucinated tool can never reach the synthesizer.
func ParsePlan(content string) (plan *model.PlanningResult, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "plan_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("plan parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			plan = nil
		}
	}()

	// content length guard
	truncated := false
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "plan_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		truncated = true
	}
	// honor completion delimiter if present
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}

	plan = &model.PlanningResult{
		ToolsNeeded:     []model.ToolNeeded{},
		InputsProvided:  map[string]string{},
		InputsMissing:   map[string]string{},
		InputsUncertain: map[string]string{},
		ParsingMetadata: map[string]any{},
		Timestamp:       time.Now().UTC(),
	}

	addErr := func(msg string) {
		v, _ := plan.ParsingMetadata["parsing_errors"].([]string)
		v = append(v, msg)
		plan.ParsingMetadata["parsing_errors"] = v
	}

	if truncated {
		plan.ParsingMetadata["truncated"] = true
	}

	records := strings.Split(content, recDelim)
	processed := 0
	for _, rec := range records {
		if processed >= maxRecords {
			plan.ParsingMetadata["records_capped"] = true
			logx.Warn().
				Str("component", "plan_parser").
				Int("max_records", maxRecords).
				Msg("record processing capped")
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" || rec == endDelim {
			continue
		}
		processed++

		rt, rerr := parseRawTuple(rec)
		if rerr != nil {
			addErr(fmt.Sprintf("bad_record: %s", safeSnippet(rec)))
			continue
		}

		switch rt.Type {
		case "reasoning":
			text := strings.TrimSpace(rt.Parts[1])
			if len(rt.Parts) >= 3 {
				text = strings.TrimSpace(rt.Parts[1] + tupDelim + rt.Parts[2])
			}
			if mustValidUTF8(text, "reasoning") != nil {
				addErr("reasoning: invalid utf8")
				continue
			}
			if plan.Reasoning != "" {
				plan.Reasoning += " "
			}
			plan.Reasoning += text

		case "tool":
			name := strings.TrimSpace(rt.Parts[1])
			if mustValidUTF8(name, "tool.name") != nil || name == "" {
				addErr("tool: invalid name")
				continue
			}
			if !tools.IsRegistered(name) {
				addErr(fmt.Sprintf("tool: unknown name %s", safeSnippet(name)))
				continue
			}
			count := 1
			if len(rt.Parts) >= 3 {
				if n, err := strconv.Atoi(strings.TrimSpace(rt.Parts[2])); err == nil && n > 0 {
					count = n
				}
			}
			plan.ToolsNeeded = append(plan.ToolsNeeded, model.ToolNeeded{Name: name, CallCount: count})

		case "provided":
			if len(rt.Parts) < 3 {
				addErr("provided: insufficient parts")
				continue
			}
			key := strings.TrimSpace(rt.Parts[1])
			val := strings.TrimSpace(rt.Parts[2])
			if mustValidUTF8(key, "provided.key") != nil || key == "" || val == "" {
				addErr("provided: invalid key or value")
				continue
			}
			plan.InputsProvided[key] = val

		case "missing":
			if len(rt.Parts) < 3 {
				addErr("missing: insufficient parts")
				continue
			}
			key := strings.TrimSpace(rt.Parts[1])
			rationale := strings.TrimSpace(rt.Parts[2])
			if mustValidUTF8(key, "missing.key") != nil || key == "" {
				addErr("missing: invalid key")
				continue
			}
			plan.InputsMissing[key] = rationale

		case "uncertain":
			if len(rt.Parts) < 3 {
				addErr("uncertain: insufficient parts")
				continue
			}
			key := strings.TrimSpace(rt.Parts[1])
			desc := strings.TrimSpace(rt.Parts[2])
			if mustValidUTF8(key, "uncertain.key") != nil || key == "" || desc == "" {
				addErr("uncertain: invalid key or description")
				continue
			}
			plan.InputsUncertain[key] = desc

		default:
			// ignore unknown type but record a hint
			addErr("unknown tuple type")
		}
	}

	return plan, nil
}

// --- helpers ---

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
