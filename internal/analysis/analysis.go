package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SystemPrompt instructs the model to answer with a single JSON object.
const SystemPrompt = "You are an expert at analyzing business call transcriptions. " +
	"Analyze the following call transcription and provide: " +
	"1. A brief summary of the call (2-3 sentences) " +
	`2. A list of 3-5 categories that describe the call content (e.g., "product inquiry", "technical issue") ` +
	"3. A list of 5-10 important keywords or tags from the call " +
	`Format your response as a JSON object with keys: "summary", "categories" (array), and "tags" (array). ` +
	"Respond with the JSON object only."

// Client derives a summary and labels from transcript text.
type Client interface {
	Analyze(ctx context.Context, text string) (Result, error)
}

type Result struct {
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// ParseError means the model answered, but not with the expected JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analysis: unparseable model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ServiceError wraps a transport or API failure of the language model provider.
type ServiceError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analysis: %s returned %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analysis: %s: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

var (
	errNoContent = errors.New("empty response")
	errNotObject = errors.New("response is not a JSON object")
)

// Parse decodes model output into a Result. Markdown code fences around the
// object are tolerated; missing label lists decode as empty.
func Parse(raw string) (Result, error) {
	body := stripFences(raw)
	if body == "" {
		return Result{}, &ParseError{Raw: raw, Err: errNoContent}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var obj json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return Result{}, &ParseError{Raw: raw, Err: err}
	}
	if dec.More() {
		return Result{}, &ParseError{Raw: raw, Err: errors.New("trailing data after object")}
	}
	// null, arrays and scalars would otherwise decode into an empty result
	if obj[0] != '{' {
		return Result{}, &ParseError{Raw: raw, Err: errNotObject}
	}

	var out struct {
		Summary    *string  `json:"summary"`
		Categories []string `json:"categories"`
		Tags       []string `json:"tags"`
	}
	if err := json.Unmarshal(obj, &out); err != nil {
		return Result{}, &ParseError{Raw: raw, Err: err}
	}

	r := Result{Categories: clean(out.Categories), Tags: clean(out.Tags)}
	if out.Summary != nil {
		r.Summary = strings.TrimSpace(*out.Summary)
	}
	return r, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an info string such as "json"
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
