package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// File is the on-disk JSON layout. Unset fields leave the defaults alone.
// Durations are given in seconds.
type File struct {
	API        *APISettings        `json:"api_settings,omitempty"`
	Processing *ProcessingSettings `json:"processing_settings,omitempty"`
	Batch      *BatchSettings      `json:"batch_settings,omitempty"`
	Split      *SplitSettings      `json:"split_settings,omitempty"`
	Server     *ServerSettings     `json:"server_settings,omitempty"`
	Prompts    map[string]string   `json:"prompts,omitempty"`
}

type APISettings struct {
	Provider       *string  `json:"provider,omitempty"`
	BaseURL        *string  `json:"base_url,omitempty"`
	APIKey         *string  `json:"api_key,omitempty"`
	Model          *string  `json:"model,omitempty"`
	VertexProject  *string  `json:"vertex_project,omitempty"`
	VertexLocation *string  `json:"vertex_location,omitempty"`
	Timeout        *float64 `json:"timeout,omitempty"`
	MaxRetries     *int     `json:"max_retries,omitempty"`
	RetryDelay     *float64 `json:"retry_delay,omitempty"`
}

type ProcessingSettings struct {
	DPI               *int     `json:"dpi,omitempty"`
	DelayBetweenPages *float64 `json:"delay_between_pages,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
	AutoSplit         *bool    `json:"auto_split_problems,omitempty"`
	GenerateIndex     *bool    `json:"generate_index,omitempty"`
	ValidateLatex     *bool    `json:"validate_latex,omitempty"`
	RenderWorkers     *int     `json:"render_workers,omitempty"`
	TextHint          *bool    `json:"text_hint,omitempty"`
	PromptTag         *string  `json:"prompt_tag,omitempty"`
}

type BatchSettings struct {
	OutputDirectory *string `json:"output_directory,omitempty"`
	FileWorkers     *int    `json:"file_workers,omitempty"`
}

type SplitSettings struct {
	HeadingPattern *string `json:"heading_pattern,omitempty"`
	NoMatchPolicy  *string `json:"no_match_policy,omitempty"`
	FallbackID     *string `json:"fallback_id,omitempty"`
}

type ServerSettings struct {
	Port           *string  `json:"port,omitempty"`
	MaxUploadBytes *int64   `json:"max_upload_bytes,omitempty"`
	QueueSize      *int     `json:"queue_size,omitempty"`
	JobTTL         *float64 `json:"job_ttl,omitempty"`
}

func (f File) apply(c *Config) {
	if a := f.API; a != nil {
		setString(&c.Provider, a.Provider)
		setString(&c.BaseURL, a.BaseURL)
		setString(&c.APIKey, a.APIKey)
		setString(&c.Model, a.Model)
		setString(&c.VertexProject, a.VertexProject)
		setString(&c.VertexLocation, a.VertexLocation)
		setSeconds(&c.Timeout, a.Timeout)
		setInt(&c.MaxRetries, a.MaxRetries)
		setSeconds(&c.RetryDelay, a.RetryDelay)
	}
	if p := f.Processing; p != nil {
		setInt(&c.DPI, p.DPI)
		setSeconds(&c.DelayBetweenPages, p.DelayBetweenPages)
		setInt(&c.MaxTokens, p.MaxTokens)
		setBool(&c.AutoSplit, p.AutoSplit)
		setBool(&c.GenerateIndex, p.GenerateIndex)
		setBool(&c.ValidateLatex, p.ValidateLatex)
		setInt(&c.RenderWorkers, p.RenderWorkers)
		setBool(&c.TextHint, p.TextHint)
		setString(&c.PromptTag, p.PromptTag)
	}
	if b := f.Batch; b != nil {
		setString(&c.OutputDir, b.OutputDirectory)
		setInt(&c.FileWorkers, b.FileWorkers)
	}
	if s := f.Split; s != nil {
		setString(&c.HeadingPattern, s.HeadingPattern)
		setString(&c.NoMatchPolicy, s.NoMatchPolicy)
		setString(&c.FallbackID, s.FallbackID)
	}
	if s := f.Server; s != nil {
		setString(&c.Port, s.Port)
		if s.MaxUploadBytes != nil {
			c.MaxUploadBytes = *s.MaxUploadBytes
		}
		setInt(&c.QueueSize, s.QueueSize)
		setSeconds(&c.JobTTL, s.JobTTL)
	}
	if len(f.Prompts) > 0 {
		if c.Prompts == nil {
			c.Prompts = map[string]string{}
		}
		for tag, text := range f.Prompts {
			c.Prompts[tag] = text
		}
	}
}

// ToFile converts a Config back into its JSON layout. Secrets are replaced
// with a mask unless withSecrets is set.
func (c Config) ToFile(withSecrets bool) File {
	key := c.APIKey
	if !withSecrets {
		key = mask(key)
	}
	return File{
		API: &APISettings{
			Provider:       &c.Provider,
			BaseURL:        &c.BaseURL,
			APIKey:         &key,
			Model:          &c.Model,
			VertexProject:  &c.VertexProject,
			VertexLocation: &c.VertexLocation,
			Timeout:        ptr(c.Timeout.Seconds()),
			MaxRetries:     &c.MaxRetries,
			RetryDelay:     ptr(c.RetryDelay.Seconds()),
		},
		Processing: &ProcessingSettings{
			DPI:               &c.DPI,
			DelayBetweenPages: ptr(c.DelayBetweenPages.Seconds()),
			MaxTokens:         &c.MaxTokens,
			AutoSplit:         &c.AutoSplit,
			GenerateIndex:     &c.GenerateIndex,
			ValidateLatex:     &c.ValidateLatex,
			RenderWorkers:     &c.RenderWorkers,
			TextHint:          &c.TextHint,
			PromptTag:         &c.PromptTag,
		},
		Batch: &BatchSettings{
			OutputDirectory: &c.OutputDir,
			FileWorkers:     &c.FileWorkers,
		},
		Split: &SplitSettings{
			HeadingPattern: &c.HeadingPattern,
			NoMatchPolicy:  &c.NoMatchPolicy,
			FallbackID:     &c.FallbackID,
		},
		Server: &ServerSettings{
			Port:           &c.Port,
			MaxUploadBytes: &c.MaxUploadBytes,
			QueueSize:      &c.QueueSize,
			JobTTL:         ptr(c.JobTTL.Seconds()),
		},
		Prompts: c.Prompts,
	}
}

// WriteFile writes the configuration as indented JSON. It refuses to
// overwrite an existing file.
func (c Config) WriteFile(path string, withSecrets bool) error {
	data, err := json.MarshalIndent(c.ToFile(withSecrets), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return f.Close()
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = seconds(*v)
	}
}

func ptr[T any](v T) *T { return &v }
