package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Example is a few-shot pair shown to the model.
type Example struct {
	Input  string
	Output any
}

type StructuredRequest struct {
	Instruction string
	Schema      map[string]any
	System      string
	Provider    string
	Params      Params
	MaxRetries  int
	// JSONMode asks providers that support it for a JSON response format on
	// the first attempt; it is dropped after a response fails to parse.
	JSONMode      bool
	RequireFences bool
	Examples      []Example
	CharLimit     int
}

// BuildStructuredPrompt renders the strict "JSON only" instruction.
func BuildStructuredPrompt(req StructuredRequest) string {
	schema, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		schema = []byte("{}")
	}

	fenceNote := "Return ONLY raw JSON with no extra text and no markdown fences."
	if req.RequireFences {
		fenceNote = "Wrap the JSON in a single fenced code block using ```json."
	}
	constraints := []string{
		"Follow the schema exactly: no extra keys, no missing keys where required.",
		"Use null for unknown values; never invent facts.",
		"Respect field types strictly (string/number/boolean/object/array).",
		"Use only allowed enum values if applicable.",
		"No trailing commas; no comments; valid UTF-8 JSON only.",
	}
	if req.CharLimit > 0 {
		constraints = append(constraints,
			fmt.Sprintf("Ensure any free-text fields respect a hard %d characters limit.", req.CharLimit))
	}

	var b strings.Builder
	b.WriteString("You are an expert content+data assistant that returns machine-parseable JSON only.\n")
	b.WriteString(fenceNote + "\n")
	b.WriteString("Output policy:\n- " + strings.Join(constraints, "\n- ") + "\n")
	b.WriteString("Task:\n" + strings.TrimSpace(req.Instruction) + "\n")
	b.WriteString("\nJSON Schema (shape and keys to follow):\n")
	b.Write(schema)
	if len(req.Examples) > 0 {
		b.WriteString("\n\nExamples (follow format strictly):")
		for i, ex := range req.Examples {
			out, err := json.Marshal(ex.Output)
			if err != nil {
				out = []byte(fmt.Sprint(ex.Output))
			}
			fmt.Fprintf(&b, "\nExample %d - Input:\n%s\nExample %d - Output JSON:\n%s",
				i+1, strings.TrimSpace(ex.Input), i+1, out)
		}
	}
	return b.String()
}

// GenerateStructured asks for a JSON object and retries up to MaxRetries
// times when the answer is missing or unparseable. The returned error is the
// last one seen: ErrNoResponse when no provider answered, *ExtractError when
// the answer was not valid JSON.
func (g *Gateway) GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]any, error) {
	prompt := BuildStructuredPrompt(req)
	jsonMode := req.JSONMode

	var lastErr error
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := g.Generate(ctx, Request{
			Prompt:   prompt,
			System:   req.System,
			Provider: req.Provider,
			Params:   req.Params,
			JSONMode: jsonMode,
		})
		if err != nil {
			lastErr = err
			continue
		}

		obj, err := ExtractJSON(res.Text)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		jsonMode = false
	}
	return nil, lastErr
}
