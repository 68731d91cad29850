// Package templates renders per-category message texts with named
// placeholder substitution and a built-in fallback.
package templates

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/youthclub/notification-queue/internal/model"
)

var (
	ErrMissingPlaceholder = errors.New("placeholder has no payload value")
	ErrMalformedTemplate  = errors.New("malformed template")
)

// Source resolves the stored template text for a category.
type Source interface {
	Template(ctx context.Context, c model.Category) (string, error)
}

type Renderer struct {
	source Source
	logger *slog.Logger
}

// NewRenderer builds a Renderer. A nil source renders built-in texts only.
func NewRenderer(source Source, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{source: source, logger: logger}
}

// Render never fails: a stored template that cannot be rendered falls back to
// the built-in text for c, then to the general text.
func (r *Renderer) Render(ctx context.Context, c model.Category, payload Payload) string {
	text := r.stored(ctx, c)
	if text == "" {
		text = Default(c)
	}

	out, err := Substitute(text, payload)
	if err == nil {
		return out
	}
	r.logger.Warn("template render failed, using built-in text",
		"category", string(c), "error", err)

	if out, err = Substitute(Default(c), payload); err == nil {
		return out
	}
	if out, err = Substitute(Default(model.General), payload); err == nil {
		return out
	}
	return Default(model.General)
}

func (r *Renderer) stored(ctx context.Context, c model.Category) string {
	if r.source == nil {
		return ""
	}
	text, err := r.source.Template(ctx, c)
	if err != nil {
		r.logger.Warn("template lookup failed", "category", string(c), "error", err)
		return ""
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}

// Substitute replaces every {key} in tmpl with payload[key]. "{{" and "}}"
// produce literal braces.
func Substitute(tmpl string, payload Payload) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", errors.Wrapf(ErrMalformedTemplate, "unterminated placeholder at offset %d", i)
			}
			key := tmpl[i+1 : i+1+end]
			if key == "" || strings.ContainsRune(key, '{') {
				return "", errors.Wrapf(ErrMalformedTemplate, "invalid placeholder at offset %d", i)
			}
			val, ok := payload[key]
			if !ok {
				return "", errors.Wrapf(ErrMissingPlaceholder, "%q", key)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", errors.Wrapf(ErrMalformedTemplate, "single '}' at offset %d", i)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

// Check reports whether tmpl renders with exactly the documented keys of c.
func Check(c model.Category, tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return errors.Wrap(ErrMalformedTemplate, "empty template")
	}
	sample := make(Payload, len(keys[c]))
	for _, k := range keys[c] {
		sample[k] = k
	}
	_, err := Substitute(tmpl, sample)
	return err
}
