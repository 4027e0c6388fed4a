package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Message is one entry of the conversation context sent to a provider.
type Message struct {
	Role Role `json:"role"`
	// Text is the textual content of the message.
	Text string `json:"text"`
	// Image is an optional attachment (vision requests).
	Image *Image `json:"image,omitempty"`
}

// Image is an inline image attachment.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// DataURL renders the image as a base64 data URL.
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ParseDataURL decodes a "data:<mime>;base64,<payload>" string. A bare base64
// payload without the data: prefix is accepted and assumed to be PNG.
func ParseDataURL(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image data")
	}
	mime := "image/png"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL: missing payload")
		}
		mt, enc, _ := strings.Cut(header, ";")
		if enc != "base64" {
			return nil, fmt.Errorf("unsupported data URL encoding %q", enc)
		}
		if mt != "" {
			mime = mt
		}
		payload = data
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}
	return &Image{MIMEType: mime, Data: b}, nil
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Artifact is the generated markup plus its integrity signature.
type Artifact struct {
	HTML      string `json:"html"`
	Signature string `json:"signature"`
}

// Action is one parsed instruction from model output. FilePath is set only
// for file actions.
type Action struct {
	Type     ActionType `json:"type"`
	FilePath string     `json:"filePath,omitempty"`
	Content  string     `json:"content"`
}

// Step is the progress record for one action or one plan implementation entry.
type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	// Output holds the written content (file actions) or captured command output (shell actions).
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// VirtualFile is an entry of the virtual file store.
type VirtualFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Plan is a structured description of an application to build.
type Plan struct {
	Objectives     string               `json:"objectives"`
	Requirements   []string             `json:"requirements"`
	Technologies   string               `json:"technologies"`
	Architecture   string               `json:"architecture"`
	Implementation []ImplementationStep `json:"implementation"`
}

// ImplementationStep is one ordered entry of a plan.
type ImplementationStep struct {
	ID            string `json:"id"`
	Step          string `json:"step"`
	Description   string `json:"description"`
	EstimatedTime string `json:"estimatedTime"`
}

// GeneratedFile is a file produced by plan execution.
type GeneratedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// PlanResult is the outcome of executing a plan.
type PlanResult struct {
	Files    []GeneratedFile `json:"files"`
	Steps    []Step          `json:"steps"`
	Commands []string        `json:"commands"`
}

// HistoryKind classifies history entries.
type HistoryKind string

const (
	HistoryGeneration HistoryKind = "generation"
	HistoryPlan       HistoryKind = "plan"
	HistoryActions    HistoryKind = "actions"
)

// HistoryEntry is one record in the capped result log.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Kind      HistoryKind `json:"kind"`
	Model     string      `json:"model,omitempty"`
	Signature string      `json:"signature,omitempty"`
	Summary   string      `json:"summary"`
	Success   bool        `json:"success"`
	CreatedAt time.Time   `json:"created_at"`
}

// Model describes a model offered by a provider.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}
