package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seo401b/new-Allert/internal/domain"
)

// Extractor asks the model which products an image shows
type Extractor struct {
	gen Generator
}

// NewExtractor creates a vision extractor backed by gen
func NewExtractor(gen Generator) *Extractor {
	return &Extractor{gen: gen}
}

// Extract returns the detections in the order the model listed them
func (e *Extractor) Extract(ctx context.Context, image domain.SourceImage) ([]domain.Detection, error) {
	reply, err := e.gen.GenerateContent(ctx, []Part{ImagePart(image), TextPart(extractPrompt)})
	if err != nil {
		return nil, err
	}

	var detections detectionList
	if err := DecodeJSON(reply, &detections); err != nil {
		return nil, err
	}

	return detections, nil
}

// detectionList decodes a JSON object of product names, keeping key order
type detectionList []domain.Detection

func (d *detectionList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object of products, got %v", tok)
	}

	list := detectionList{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var names productNames
		if err := dec.Decode(&names); err != nil {
			return fmt.Errorf("product %q: %w", key, err)
		}

		det := domain.Detection{
			Key:            strings.TrimSpace(key),
			LocalName:      strings.TrimSpace(names.Local),
			TranslatedName: strings.TrimSpace(names.Translated),
		}
		if det.QueryName() == "" {
			det.LocalName = det.Key
		}
		list = append(list, det)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = list
	return nil
}

// productNames is one product's names. It accepts the English field names,
// the Korean ones, or a bare string.
type productNames struct {
	Local      string
	Translated string
}

func (p *productNames) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		p.Local = bare
		return nil
	}

	var fields struct {
		LocalName      string `json:"localName"`
		TranslatedName string `json:"translatedName"`
		Korean         string `json:"한글"`
		English        string `json:"영어"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	p.Local = firstNonEmpty(fields.LocalName, fields.Korean)
	p.Translated = firstNonEmpty(fields.TranslatedName, fields.English)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
