// internal/model/template.go
package model

import (
	"encoding/json"
	"strings"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
)

// TemplateKind discriminates the content payload of a MessageTemplate.
type TemplateKind string

const (
	KindText    TemplateKind = "text"
	KindImage   TemplateKind = "image"
	KindVideo   TemplateKind = "video"
	KindButtons TemplateKind = "buttons"
)

// MessageTemplate is a tagged union: exactly one of Text, Media or Buttons is
// populated, depending on Kind. The payload is decoded from the single
// "content" JSON field and validated at the store boundary; rendering never
// has to guess at optional fields.
type MessageTemplate struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Kind    TemplateKind    `json:"kind"`
	Text    *TextContent    `json:"-"`
	Media   *MediaContent   `json:"-"`
	Buttons *ButtonsContent `json:"-"`
}

type TextContent struct {
	Text string `json:"text"`
}

type MediaContent struct {
	MediaURL     string `json:"mediaUrl,omitempty"`
	MediaDataURL string `json:"mediaDataUrl,omitempty"`
	Caption      string `json:"caption,omitempty"`
}

// Locator returns the media reference, preferring the hosted URL over an
// inline data URL.
func (m *MediaContent) Locator() string {
	if u := strings.TrimSpace(m.MediaURL); u != "" {
		return u
	}
	return strings.TrimSpace(m.MediaDataURL)
}

type ButtonsContent struct {
	Steps       []Step `json:"steps"`
	StartStepID string `json:"startStepId,omitempty"`
}

// Step is one node of a buttons-template flow. Button edges reference other
// steps by id; the graph may contain cycles.
type Step struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

type Button struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	NextStepID string `json:"nextStepId,omitempty"`
}

type messageTemplateJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Kind    TemplateKind    `json:"kind"`
	Content json.RawMessage `json:"content,omitempty"`
}

func (t *MessageTemplate) UnmarshalJSON(data []byte) error {
	var raw messageTemplateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID, t.Name, t.Kind = raw.ID, raw.Name, raw.Kind
	t.Text, t.Media, t.Buttons = nil, nil, nil

	// A malformed content payload degrades to zero values rather than
	// failing the decode; the renderer treats those as empty strings.
	switch raw.Kind {
	case KindText:
		c := &TextContent{}
		if len(raw.Content) > 0 {
			_ = json.Unmarshal(raw.Content, c)
		}
		t.Text = c
	case KindImage, KindVideo:
		c := &MediaContent{}
		if len(raw.Content) > 0 {
			_ = json.Unmarshal(raw.Content, c)
		}
		t.Media = c
	case KindButtons:
		c := &ButtonsContent{}
		if len(raw.Content) > 0 {
			_ = json.Unmarshal(raw.Content, c)
		}
		t.Buttons = c
	}
	return nil
}

func (t MessageTemplate) MarshalJSON() ([]byte, error) {
	raw := messageTemplateJSON{ID: t.ID, Name: t.Name, Kind: t.Kind}

	var content any
	switch t.Kind {
	case KindText:
		if t.Text != nil {
			content = t.Text
		}
	case KindImage, KindVideo:
		if t.Media != nil {
			content = t.Media
		}
	case KindButtons:
		if t.Buttons != nil {
			content = t.Buttons
		}
	}
	if content != nil {
		b, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		raw.Content = b
	}
	return json.Marshal(raw)
}

// Validate enforces the per-kind invariants before a template is stored.
// A buttons template needs at least one step, and a non-empty startStepId
// must resolve; an empty startStepId falls back to the first step at render
// time. Dangling button edges are allowed (the walker marks them).
func (t *MessageTemplate) Validate() error {
	switch t.Kind {
	case KindText, KindImage, KindVideo:
		return nil
	case KindButtons:
		if t.Buttons == nil || len(t.Buttons.Steps) == 0 {
			return apperrors.NewValidation("buttons template %q has no steps", t.ID)
		}
		if t.Buttons.StartStepID != "" {
			for _, s := range t.Buttons.Steps {
				if s.ID == t.Buttons.StartStepID {
					return nil
				}
			}
			return apperrors.NewValidation("startStepId %q does not reference an existing step", t.Buttons.StartStepID)
		}
		return nil
	default:
		return apperrors.NewValidation("unknown template kind %q", string(t.Kind))
	}
}
