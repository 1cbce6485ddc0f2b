// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/omninode/omnintel/pkg/httpx"
)

// ErrUnsupportedLanguage marks extraction requests the service cannot
// serve. The orchestrator treats it as a non-critical degradation.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Entity is one extracted code entity (function, type, class).
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Line int    `json:"line"`
}

// Import is one extracted import with its resolution confidence.
type Import struct {
	Target     string  `json:"target"`
	ImportType string  `json:"import_type"`
	LineNumber int     `json:"line_number"`
	Confidence float64 `json:"confidence"`
}

// Extraction bundles the entity and import analysis of one document.
type Extraction struct {
	Entities []Entity `json:"entities"`
	Imports  []Import `json:"imports"`
}

// Quality is the structural quality assessment of one document.
type Quality struct {
	Score          float64 `json:"score"`
	OnexCompliance float64 `json:"onex_compliance"`
}

// Metadata is the stamped classification of one document, carried on
// the completion event.
type Metadata map[string]string

// IntelligenceService is the injected analysis collaborator. Whether it
// runs in-process or behind HTTP is an implementation detail of the
// binding; the orchestrator only sees these three calls.
type IntelligenceService interface {
	ExtractEntities(ctx context.Context, path, language, content string) (Extraction, error)
	AssessQuality(ctx context.Context, path, language, content string) (Quality, error)
	StampMetadata(ctx context.Context, path, language, content string) (Metadata, error)
}

// HTTPIntelligence calls a remote intelligence service through the
// shared retrying client.
type HTTPIntelligence struct {
	client  *httpx.Client
	baseURL string
}

// NewHTTPIntelligence creates the remote binding.
func NewHTTPIntelligence(baseURL string, cfg httpx.Config, logger *slog.Logger) *HTTPIntelligence {
	return &HTTPIntelligence{
		client:  httpx.New("intelligence", cfg, logger),
		baseURL: baseURL,
	}
}

type analysisRequest struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// ExtractEntities implements IntelligenceService.
func (s *HTTPIntelligence) ExtractEntities(ctx context.Context, path, language, content string) (Extraction, error) {
	var out Extraction
	err := s.client.PostJSON(ctx, s.baseURL+"/api/v1/entities",
		analysisRequest{Path: path, Language: language, Content: content}, &out)
	if httpx.IsStatus(err, 422) {
		return Extraction{}, ErrUnsupportedLanguage
	}
	if err != nil {
		return Extraction{}, fmt.Errorf("extract entities: %w", err)
	}
	return out, nil
}

// AssessQuality implements IntelligenceService.
func (s *HTTPIntelligence) AssessQuality(ctx context.Context, path, language, content string) (Quality, error) {
	var out Quality
	err := s.client.PostJSON(ctx, s.baseURL+"/api/v1/quality",
		analysisRequest{Path: path, Language: language, Content: content}, &out)
	if err != nil {
		return Quality{}, fmt.Errorf("assess quality: %w", err)
	}
	return out, nil
}

// StampMetadata implements IntelligenceService.
func (s *HTTPIntelligence) StampMetadata(ctx context.Context, path, language, content string) (Metadata, error) {
	var out Metadata
	err := s.client.PostJSON(ctx, s.baseURL+"/api/v1/metadata",
		analysisRequest{Path: path, Language: language, Content: content}, &out)
	if err != nil {
		return nil, fmt.Errorf("stamp metadata: %w", err)
	}
	return out, nil
}

// HeuristicIntelligence is the in-process binding: line-scanning
// extraction for the languages the platform sees most. Good enough for
// graph topology; not a parser.
type HeuristicIntelligence struct{}

// ExtractEntities implements IntelligenceService for go and python.
func (HeuristicIntelligence) ExtractEntities(_ context.Context, path, language, content string) (Extraction, error) {
	switch language {
	case "go":
		return scanGo(path, content), nil
	case "python":
		return scanPython(path, content), nil
	default:
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
}

// AssessQuality implements IntelligenceService with a crude density
// score: the share of non-empty, non-comment lines.
func (HeuristicIntelligence) AssessQuality(_ context.Context, _, _, content string) (Quality, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return Quality{}, nil
	}
	substantive := 0
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") {
			continue
		}
		substantive++
	}
	score := float64(substantive) / float64(len(lines))
	return Quality{Score: score, OnexCompliance: score}, nil
}

// StampMetadata implements IntelligenceService with document facts the
// read surfaces filter on: language, line count, and a size class.
func (HeuristicIntelligence) StampMetadata(_ context.Context, path, language, content string) (Metadata, error) {
	lines := strings.Count(content, "\n") + 1
	sizeClass := "small"
	switch {
	case len(content) > 64<<10:
		sizeClass = "large"
	case len(content) > 8<<10:
		sizeClass = "medium"
	}
	return Metadata{
		"language":   language,
		"file_name":  path[strings.LastIndex(path, "/")+1:],
		"line_count": strconv.Itoa(lines),
		"size_class": sizeClass,
	}, nil
}

func entityID(path, name string) string {
	return path + "#" + name
}

func scanGo(path, content string) Extraction {
	var ex Extraction
	for i, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "func "):
			if name := identAfter(t, "func "); name != "" {
				ex.Entities = append(ex.Entities, Entity{
					ID: entityID(path, name), Name: name, Type: "function", Line: i + 1,
				})
			}
		case strings.HasPrefix(t, "type "):
			if name := identAfter(t, "type "); name != "" {
				ex.Entities = append(ex.Entities, Entity{
					ID: entityID(path, name), Name: name, Type: "type", Line: i + 1,
				})
			}
		case strings.HasPrefix(t, "import \""):
			target := strings.Trim(strings.TrimPrefix(t, "import "), `"`)
			ex.Imports = append(ex.Imports, Import{
				Target: target, ImportType: "import", LineNumber: i + 1, Confidence: 0.9,
			})
		}
	}
	return ex
}

func scanPython(path, content string) Extraction {
	var ex Extraction
	for i, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "def "):
			if name := identAfter(t, "def "); name != "" {
				ex.Entities = append(ex.Entities, Entity{
					ID: entityID(path, name), Name: name, Type: "function", Line: i + 1,
				})
			}
		case strings.HasPrefix(t, "class "):
			if name := identAfter(t, "class "); name != "" {
				ex.Entities = append(ex.Entities, Entity{
					ID: entityID(path, name), Name: name, Type: "class", Line: i + 1,
				})
			}
		case strings.HasPrefix(t, "import "):
			target := strings.Fields(strings.TrimPrefix(t, "import "))[0]
			ex.Imports = append(ex.Imports, Import{
				Target: target, ImportType: "import", LineNumber: i + 1, Confidence: 0.8,
			})
		case strings.HasPrefix(t, "from "):
			fields := strings.Fields(strings.TrimPrefix(t, "from "))
			if len(fields) > 0 {
				ex.Imports = append(ex.Imports, Import{
					Target: fields[0], ImportType: "from_import", LineNumber: i + 1, Confidence: 0.8,
				})
			}
		}
	}
	return ex
}

// identAfter pulls the identifier following a keyword prefix, stopping
// at the first non-identifier byte. Go method receivers are skipped.
func identAfter(line, prefix string) string {
	rest := strings.TrimPrefix(line, prefix)
	if strings.HasPrefix(rest, "(") {
		// Method receiver: skip to the closing paren.
		if idx := strings.Index(rest, ")"); idx >= 0 {
			rest = strings.TrimSpace(rest[idx+1:])
		}
	}
	end := 0
	for end < len(rest) {
		c := rest[end]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || end > 0 && c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	return rest[:end]
}
