package mailer

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Renderer renders Liquid email templates from a directory, caching the
// parsed form per file. Subjects are plain strings built by the contexts,
// so only bodies go through Liquid.
type Renderer struct {
	engine *liquid.Engine
	dir    string
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer rooted at dir.
func NewRenderer(dir string) *Renderer {
	r := &Renderer{
		engine: liquid.NewEngine(),
		dir:    dir,
	}
	r.registerFilters()
	return r
}

// registerFilters adds the filters our templates rely on.
func (r *Renderer) registerFilters() {
	// {{ student_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ course_name | titlecase }}
	// cases.Caser is stateful, so one is built per call.
	r.engine.RegisterFilter("titlecase", func(s string) string {
		return cases.Title(language.English).String(strings.ToLower(s))
	})

	// {{ amount | currency: "USD" }}
	r.engine.RegisterFilter("currency", func(value interface{}, code string) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return v
			}
			f = parsed
		default:
			return fmt.Sprintf("%v", value)
		}
		if code == "" {
			code = "USD"
		}
		return fmt.Sprintf("%s %.2f", code, f)
	})

	// {{ percent_complete | percentage }}
	r.engine.RegisterFilter("percentage", func(value interface{}) string {
		switch v := value.(type) {
		case int:
			return fmt.Sprintf("%d%%", v)
		case float64:
			return fmt.Sprintf("%.0f%%", v)
		default:
			return fmt.Sprintf("%v%%", value)
		}
	})

	// {{ email | urlencode }}
	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ user_input | escape }}
	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Render renders the named template file with the given variables.
func (r *Renderer) Render(templateName string, vars map[string]interface{}) (string, error) {
	tpl, err := r.load(templateName)
	if err != nil {
		return "", err
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", templateName, err)
	}
	return out, nil
}

// RenderString parses and renders an inline template, uncached.
func (r *Renderer) RenderString(templateStr string, vars map[string]interface{}) (string, error) {
	return r.engine.ParseAndRenderString(templateStr, vars)
}

func (r *Renderer) load(templateName string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(templateName); ok {
		return cached.(*liquid.Template), nil
	}

	path := filepath.Join(r.dir, templateName+".liquid")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", templateName, err)
	}

	tpl, err := r.engine.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", templateName, err)
	}

	r.cache.Store(templateName, tpl)
	return tpl, nil
}

// ClearCache drops all cached templates, forcing a re-read from disk.
func (r *Renderer) ClearCache() {
	r.cache = sync.Map{}
}
