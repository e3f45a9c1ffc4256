// Package content resolves a sequence step's template reference into the
// rendered message for one prospect, using the Liquid template language
// for personalization.
package content

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/leadpulse/outreach/internal/domain"
)

// ErrTemplateNotFound indicates a sequence step references a template that
// does not exist. This is an operator-visible configuration error, not a
// dispatch failure.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a stored message template. Subject is only meaningful for
// email; other channels render Body alone.
type Template struct {
	Ref            string         `json:"ref" db:"ref"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Channel        domain.Channel `json:"channel" db:"channel"`
	Subject        string         `json:"subject" db:"subject"`
	Body           string         `json:"body" db:"body"`
}

// Rendered is the personalized output handed to a channel provider.
type Rendered struct {
	Channel domain.Channel
	Subject string
	Body    string
}

// TemplateStore loads templates by reference.
type TemplateStore interface {
	GetByRef(ctx context.Context, orgID, ref string) (*Template, error)
}

// Renderer renders templates with parsed-template caching. Safe for
// concurrent use.
type Renderer struct {
	store  TemplateStore
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template, keyed by org:ref:slot
}

// NewRenderer creates a renderer backed by the given template store.
func NewRenderer(store TemplateStore) *Renderer {
	r := &Renderer{
		store:  store,
		engine: liquid.NewEngine(),
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }}
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

	// {{ company | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
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

// Render resolves the step's template and renders it for the prospect.
func (r *Renderer) Render(ctx context.Context, orgID string, step *domain.SequenceStep, prospect *domain.Prospect) (*Rendered, error) {
	tpl, err := r.store.GetByRef(ctx, orgID, step.TemplateRef)
	if err != nil {
		return nil, err
	}

	vars := Variables(prospect)
	body, err := r.renderCached(orgID+":"+step.TemplateRef+":body", tpl.Body, vars)
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", step.TemplateRef, err)
	}

	out := &Rendered{Channel: step.Channel, Body: body}
	if step.Channel == domain.ChannelEmail && tpl.Subject != "" {
		subject, err := r.renderCached(orgID+":"+step.TemplateRef+":subject", tpl.Subject, vars)
		if err != nil {
			return nil, fmt.Errorf("render template %s subject: %w", step.TemplateRef, err)
		}
		out.Subject = subject
	}
	return out, nil
}

func (r *Renderer) renderCached(cacheKey, source string, vars map[string]interface{}) (string, error) {
	if cached, ok := r.cache.Load(cacheKey); ok {
		return cached.(*liquid.Template).RenderString(vars)
	}
	tpl, err := r.engine.ParseString(source)
	if err != nil {
		return "", err
	}
	r.cache.Store(cacheKey, tpl)
	return tpl.RenderString(vars)
}

// Invalidate drops a template's parsed entries, for use after an edit.
func (r *Renderer) Invalidate(orgID, ref string) {
	r.cache.Delete(orgID + ":" + ref + ":body")
	r.cache.Delete(orgID + ":" + ref + ":subject")
}

// Variables builds the Liquid binding for one prospect.
func Variables(p *domain.Prospect) map[string]interface{} {
	vars := map[string]interface{}{
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"full_name":    strings.TrimSpace(p.FirstName + " " + p.LastName),
		"company":      p.Company,
		"title":        p.Title,
		"company_size": p.CompanySize,
	}
	if email := p.Identity(domain.ChannelEmail); email != nil {
		vars["email"] = email.Value
	}
	return vars
}
