// Package gemini provides a Completer implementation for the Google Gemini
// generateContent API.
package gemini

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Gemini API. Replies are
// not streamed.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. The baseURL has no trailing slash.
//
// Gemini sends no quota headers, so RateLimitHeaders stays nil and only the
// configured per-minute limits apply.
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-goog-api-key",
	}
	a.Name = model
	a.MaxTokens = 8192

	return a
}

// Complete sends the request to generateContent and emits the reply.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request, emit modeladapter.Sink) error {
	body, err := a.buildRequest(req)
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	var resp apiResponse
	if err := a.PostJSON(ctx, "/v1beta/models/"+a.Name+":generateContent", body, &resp); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return fmt.Errorf("gemini: empty candidates in response")
	}

	tc := usage.TokenCount{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}
	a.Usage.Add(tc)

	cand := resp.Candidates[0]
	return modeladapter.EmitMessage(parseCandidate(cand), cand.FinishReason, tc, emit)
}

// --- request types ---

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"systemInstruction,omitempty"`
	Tools             []apiToolSet     `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text             string           `json:"text,omitempty"`
	FunctionCall     *apiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *apiFunctionResp `json:"functionResponse,omitempty"`
}

type apiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type apiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type apiToolSet struct {
	FunctionDeclarations []apiFuncDecl `json:"functionDeclarations"`
}

type apiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// --- response types ---

type apiResponse struct {
	Candidates    []apiCandidate `json:"candidates"`
	UsageMetadata apiUsageMeta   `json:"usageMetadata"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMeta struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(r modeladapter.Request) (apiRequest, error) {
	req := apiRequest{
		GenerationConfig: generationConfig{MaxOutputTokens: a.MaxTokens},
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.GenerationConfig.Temperature = &t
	}

	if len(r.Tools) > 0 {
		req.Tools = []apiToolSet{{FunctionDeclarations: declarations(r.Tools)}}
	}

	if r.System != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: r.System}}}
	}

	// functionResponse needs the function name, which a tool result only
	// knows by call ID.
	names := make(map[string]string)
	for _, m := range r.Messages {
		for _, tc := range m.ToolCalls() {
			names[tc.ID] = tc.Name
		}
	}

	for _, m := range r.Messages {
		if err := appendContent(&req.Contents, m, names); err != nil {
			return apiRequest{}, err
		}
	}

	return req, nil
}

func declarations(tools []toolbox.Schema) []apiFuncDecl {
	decls := make([]apiFuncDecl, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		decls[i] = apiFuncDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  sanitizeSchema(schema),
		}
	}
	return decls
}

// appendContent converts m into API parts. Consecutive turns with the same API
// role are merged, since the API requires alternating roles.
func appendContent(contents *[]apiContent, m message.Message, names map[string]string) error {
	apiRole := mapRole(m.Role)

	for _, p := range m.Parts {
		part, err := toPart(p, names)
		if err != nil {
			return err
		}
		if part == nil {
			continue
		}

		if n := len(*contents); n > 0 && (*contents)[n-1].Role == apiRole {
			(*contents)[n-1].Parts = append((*contents)[n-1].Parts, *part)
			continue
		}

		*contents = append(*contents, apiContent{Role: apiRole, Parts: []apiPart{*part}})
	}

	return nil
}

func toPart(p content.Part, names map[string]string) (*apiPart, error) {
	switch v := p.(type) {
	case content.Text:
		if v.Text == "" {
			return nil, nil
		}
		return &apiPart{Text: v.Text}, nil
	case content.ToolCall:
		args := json.RawMessage(v.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		return &apiPart{FunctionCall: &apiFunctionCall{Name: v.Name, Args: args}}, nil
	case content.ToolResult:
		name, ok := names[v.ToolCallID]
		if !ok {
			return nil, fmt.Errorf("no tool call %q in history for tool result", v.ToolCallID)
		}
		return &apiPart{FunctionResponse: &apiFunctionResp{Name: name, Response: functionResponse(v.Content)}}, nil
	default:
		return nil, nil
	}
}

// functionResponse wraps tool output as {"result": ...}. Output that is valid
// JSON is embedded as is, anything else as a string.
func functionResponse(out string) json.RawMessage {
	if json.Valid([]byte(out)) {
		return json.RawMessage(`{"result":` + out + `}`)
	}
	b, _ := json.Marshal(out)
	return json.RawMessage(`{"result":` + string(b) + `}`)
}

// sanitizeSchema strips keywords the API rejects ($schema and
// additionalProperties) at every level of properties and items.
func sanitizeSchema(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}

	delete(obj, "$schema")
	delete(obj, "additionalProperties")

	if props, ok := obj["properties"]; ok {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(props, &m); err == nil {
			for k, v := range m {
				m[k] = sanitizeSchema(v)
			}
			if b, err := json.Marshal(m); err == nil {
				obj["properties"] = b
			}
		}
	}

	if items, ok := obj["items"]; ok {
		obj["items"] = sanitizeSchema(items)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return b
}

// mapRole maps a turn role to an API role. Tool results travel in user turns.
func mapRole(r role.Role) string {
	if r == role.Assistant {
		return "model"
	}
	return "user"
}

// newCallID synthesizes a tool call ID, since the API returns none.
func newCallID(name string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "call_" + name + "_" + hex.EncodeToString(b)
}

func parseCandidate(cand apiCandidate) message.Message {
	var parts []content.Part

	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args := string(p.FunctionCall.Args)
			if args == "" || args == "null" {
				args = "{}"
			}
			parts = append(parts, content.ToolCall{
				ID:        newCallID(p.FunctionCall.Name),
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		case p.Text != "":
			parts = append(parts, content.Text{Text: p.Text})
		}
	}

	return message.New(role.Assistant, parts...)
}
