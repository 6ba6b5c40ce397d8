package model

import (
	"errors"
	"fmt"
	"strings"
)

// Provider names one of the supported AI vendors
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Providers lists the supported vendors
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// DefaultModels holds the model used when settings leave it empty
var DefaultModels = map[Provider]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-20241022",
	ProviderGemini:    "gemini-1.5-flash",
}

// Valid reports whether p is a supported vendor
func (p Provider) Valid() bool {
	_, ok := DefaultModels[p]
	return ok
}

// AISettings is the user-supplied vendor configuration. Absent settings mean demo mode.
type AISettings struct {
	Provider Provider `json:"provider"`
	APIKey   string   `json:"apiKey"`
	Model    string   `json:"model"`
}

// Normalize trims the fields, lowercases the provider and fills in the default model
func (s AISettings) Normalize() AISettings {
	s.Provider = Provider(strings.ToLower(strings.TrimSpace(string(s.Provider))))
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.Model = strings.TrimSpace(s.Model)
	if s.Model == "" {
		s.Model = DefaultModels[s.Provider]
	}
	return s
}

// Validate checks the settings are usable for a vendor call
func (s AISettings) Validate() error {
	if !s.Provider.Valid() {
		return fmt.Errorf("unsupported provider %q", s.Provider)
	}
	if s.APIKey == "" {
		return errors.New("API key is required")
	}
	if s.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// Layout is the workspace arrangement preference
type Layout string

const (
	LayoutSplit    Layout = "split"
	LayoutChat     Layout = "chat"
	LayoutDocument Layout = "document"
)

// Valid reports whether l is a known layout
func (l Layout) Valid() bool {
	switch l {
	case LayoutSplit, LayoutChat, LayoutDocument:
		return true
	}
	return false
}

// Preferences are the independently persisted UI preferences
type Preferences struct {
	Layout            Layout `json:"layout"`
	SkipDeleteConfirm bool   `json:"skipDeleteConfirm"`
	HasSeenGuide      bool   `json:"hasSeenGuide"`
}
