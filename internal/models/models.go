package models

import (
	"encoding/json"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallType is the kind of capability an agent invoked mid-stream.
type ToolCallType string

const (
	ToolCallHTTPRequest        ToolCallType = "http_request"
	ToolCallDatasource         ToolCallType = "datasource"
	ToolCallBrowser            ToolCallType = "browser"
	ToolCallPerplexity         ToolCallType = "perplexity"
	ToolCallExternalDatasource ToolCallType = "external_datasource"
)

// ToolKind is the configured type of an agent tool.
type ToolKind string

const (
	ToolBrowser            ToolKind = "BROWSER"
	ToolCodeExecutor       ToolKind = "CODE_EXECUTOR"
	ToolHTTP               ToolKind = "HTTP"
	ToolPerplexity         ToolKind = "PERPLEXITY"
	ToolExternalDatasource ToolKind = "EXTERNAL_DATASOURCE"
)

type Rating string

const (
	RatingPositive Rating = "POSITIVE"
	RatingNegative Rating = "NEGATIVE"
)

type Tool struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Type         ToolKind       `json:"type"`
	ReturnDirect bool           `json:"return_direct"`
	Config       map[string]any `json:"config,omitempty"`
	ProjectID    string         `json:"project_id"`
}

type Agent struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Avatar          string  `json:"avatar,omitempty"`
	InitialMessage  string  `json:"initial_message,omitempty"`
	Description     string  `json:"description,omitempty"`
	IsActive        bool    `json:"is_active"`
	LLMModel        string  `json:"llm_model"`
	LLMProvider     string  `json:"llm_provider"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	MaxSteps        int     `json:"max_steps"`
	VectorTopK      int     `json:"vector_topk"`
	RerankEnabled   bool    `json:"rerank_enabled"`
	RerankTopK      int     `json:"rerank_topk"`
	Prompt          string  `json:"prompt,omitempty"`
	EnableStreaming bool    `json:"enable_streaming"`
	EnableCitations bool    `json:"enable_citations"`
	EnableTools     bool    `json:"enable_tools"`
	Tools           []Tool  `json:"tools,omitempty"`
	ProjectID       string  `json:"project_id"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// ChatSession binds a bearer token to one configured agent.
type ChatSession struct {
	ID             string                         `json:"id"`
	Agent          Agent                          `json:"agent"`
	Thread         *Thread                        `json:"thread,omitempty"`
	ExternalRef    string                         `json:"external_ref"`
	AllowedVectors map[string]map[string][]string `json:"allowed_vectors"`
	CreatedAt      string                         `json:"created_at"`
	UpdatedAt      string                         `json:"updated_at"`
}

// NewChatSession is returned when a session is created with a project token.
type NewChatSession struct {
	ChatSession
	ChatToken    string `json:"chat_token"`
	RefreshToken string `json:"refresh_token"`
	ThreadID     string `json:"thread_id"`
}

type Thread struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	UserID      *string   `json:"user_id"`
	ExternalRef string    `json:"external_ref"`
	Title       *string   `json:"title"`
	Messages    []Message `json:"messages"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// DisplayTitle falls back to a short id when the backend has not titled the thread yet.
func (t Thread) DisplayTitle() string {
	if t.Title != nil && *t.Title != "" {
		return *t.Title
	}
	id := t.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Chat %s...", id)
}

type Message struct {
	ID         string      `json:"id,omitempty"`
	ThreadID   string      `json:"thread_id"`
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls"`
	ToolResult *ToolResult `json:"tool_result"`
	Avatar     string      `json:"avatar,omitempty"`

	Resubmittable bool `json:"-"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      ToolCallType   `json:"type"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type DocumentMetadata struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Page       int    `json:"page,omitempty"`
	TextChunk  string `json:"text_chunk"`
}

type ToolResult struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Type              ToolCallType       `json:"type"`
	Output            json.RawMessage    `json:"output"`
	DocumentsMetadata []DocumentMetadata `json:"documents_metadata,omitempty"`
	ExtraInfo         map[string]any     `json:"extra_info,omitempty"`
	JSONTable         any                `json:"json_table,omitempty"`
	SQLQuery          string             `json:"sql_query,omitempty"`
}

// OutputText returns a string output verbatim and structured output as raw JSON.
func (r ToolResult) OutputText() string {
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	return string(r.Output)
}

type Resource struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Summary      string   `json:"summary,omitempty"`
	URL          string   `json:"url"`
	Type         string   `json:"type"`
	DatasourceID string   `json:"datasource_id"`
	Vectors      []string `json:"vectors,omitempty"`
}

// Setting is one persisted client-side key/value pair.
type Setting struct {
	Key           string
	Value         string
	UpdatedAtUnix int64
}
