// Package compose renders the post text for a catalog item: a templated body
// followed by a hashtag line. Rendering is deterministic so a dry run shows
// exactly what a real run would publish.
package compose

import (
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
	"vitrine/internal/services"
)

// maxHashtags caps the hashtag line. The platform truncates captions, so
// base tags beyond the cap are dropped before the category tag is.
const maxHashtags = 7

const defaultTextTemplate = `{{.Name}}

価格 {{.Price}}円{{if .SourceURL}}
{{.SourceURL}}{{end}}`

type templateFields struct {
	Name        string
	Price       string
	Category    string
	Description string
	SourceURL   string
}

// Composer builds post text from catalog items.
type Composer struct {
	tmpl     *template.Template
	printer  *message.Printer
	hashtags []string
}

// New builds a Composer from the rotation settings. An empty text template
// selects the built-in layout.
func New(cfg *config.Config) (*Composer, error) {
	tag, err := language.Parse(cfg.Rotation.PriceLocale)
	if err != nil {
		return nil, fmt.Errorf("parse price locale: %w", err)
	}

	text := cfg.Rotation.TextTemplate
	if text == "" {
		text = defaultTextTemplate
	}
	tmpl, err := template.New("post").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}

	return &Composer{
		tmpl:     tmpl,
		printer:  message.NewPrinter(tag),
		hashtags: cfg.Rotation.Hashtags,
	}, nil
}

// Compose renders the full post text for an item: template body, blank line,
// hashtag line. Malformed item data fails with a validation error so the
// attempt is finalized without touching any remote service.
func (c *Composer) Compose(item *catalog.Item) (string, error) {
	if err := validateItem(item); err != nil {
		return "", err
	}

	fields := templateFields{
		Name:        strings.TrimSpace(item.Name),
		Price:       c.printer.Sprintf("%d", item.Price),
		Category:    strings.TrimSpace(item.Category),
		Description: strings.TrimSpace(item.Description),
		SourceURL:   strings.TrimSpace(item.SourceURL),
	}

	var body strings.Builder
	if err := c.tmpl.Execute(&body, fields); err != nil {
		return "", services.Wrap(services.ErrValidation, "compose", "render", "execute text template", err)
	}
	text := strings.TrimSpace(body.String())
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "compose", "render", "template produced empty text", nil)
	}

	if line := c.hashtagLine(item); line != "" {
		text = text + "\n\n" + line
	}
	return text, nil
}

func validateItem(item *catalog.Item) error {
	if item == nil {
		return services.Wrap(services.ErrValidation, "compose", "validate", "item is nil", nil)
	}
	if strings.TrimSpace(item.Name) == "" {
		return services.Wrap(services.ErrValidation, "compose", "validate", fmt.Sprintf("item %s has no name", item.Key), nil)
	}
	if item.Price < 0 {
		return services.Wrap(services.ErrValidation, "compose", "validate", fmt.Sprintf("item %s has a negative price", item.Key), nil)
	}
	return nil
}

func (c *Composer) hashtagLine(item *catalog.Item) string {
	tags := make([]string, 0, maxHashtags)
	seen := make(map[string]struct{}, maxHashtags)
	add := func(raw string) {
		if len(tags) >= maxHashtags {
			return
		}
		token := hashtagToken(raw)
		if token == "" {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		tags = append(tags, "#"+token)
	}

	for _, tag := range c.hashtags {
		add(tag)
	}
	add(item.Category)

	return strings.Join(tags, " ")
}

// hashtagToken strips a candidate down to letters, digits, and underscores
// so the platform does not cut the tag short at punctuation or whitespace.
func hashtagToken(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
