package api

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/ingest"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

// ProspectStore is the prospect persistence surface the handlers need.
type ProspectStore interface {
	Create(ctx context.Context, p *domain.Prospect) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Prospect, error)
	Update(ctx context.Context, p *domain.Prospect) error
	UpdateStage(ctx context.Context, orgID, id string, stage domain.Stage) error
	Delete(ctx context.Context, orgID, id string) error
}

// SequenceStore is the sequence definition persistence surface.
type SequenceStore interface {
	Create(ctx context.Context, s *domain.SequenceDefinition) error
	GetByID(ctx context.Context, orgID, id string) (*domain.SequenceDefinition, error)
	List(ctx context.Context, orgID string) ([]domain.SequenceDefinition, error)
	ReplaceSteps(ctx context.Context, s *domain.SequenceDefinition) error
	SetStatus(ctx context.Context, orgID, id string, status domain.SequenceStatus) error
}

// TemplateStore persists content templates.
type TemplateStore interface {
	Upsert(ctx context.Context, t *content.Template) error
	GetByRef(ctx context.Context, orgID, ref string) (*content.Template, error)
}

// TemplateInvalidator drops compiled templates from the render cache after
// an upsert.
type TemplateInvalidator interface {
	Invalidate(orgID, ref string)
}

// InteractionReader provides read access to the interaction log.
type InteractionReader interface {
	ListByProspect(ctx context.Context, orgID, prospectID string) ([]domain.Interaction, error)
}

// Enroller is the enrollment scheduler surface exposed over HTTP.
type Enroller interface {
	Enroll(ctx context.Context, orgID, prospectID, sequenceID string) (*domain.Enrollment, error)
	Get(ctx context.Context, orgID, id string) (*domain.Enrollment, error)
	ListForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error)
	ListOpenForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error)
	Pause(ctx context.Context, orgID, id string) (*domain.Enrollment, error)
	Resume(ctx context.Context, orgID, id string) (*domain.Enrollment, error)
	Cancel(ctx context.Context, orgID, id string, reason domain.StopReason) (*domain.Enrollment, error)
	StopAllForProspect(ctx context.Context, orgID, prospectID string, reason domain.StopReason) (int, error)
}

// Suppressions is the suppression registry surface exposed over HTTP.
type Suppressions interface {
	Suppress(ctx context.Context, orgID, identity string, channel domain.Channel, reason domain.SuppressionReason, source domain.SuppressionSource) error
	Remove(ctx context.Context, orgID, identity string) error
	List(ctx context.Context, orgID string, filter suppression.ListFilter) ([]domain.SuppressionEntry, int, error)
	GetStats(ctx context.Context, orgID string) (*suppression.Stats, error)
}

// Ingestor accepts inbound provider events.
type Ingestor interface {
	Ingest(ctx context.Context, ev *ingest.WebhookEvent) (*domain.Interaction, bool, error)
}

// ChannelResolver previews which channels are usable for a prospect.
type ChannelResolver interface {
	AvailableChannels(ctx context.Context, plan domain.Plan, p *domain.Prospect) ([]domain.Channel, error)
}

// PlanLookup resolves an organization's plan.
type PlanLookup interface {
	Plan(ctx context.Context, orgID string) (domain.Plan, error)
}

// ScoreReader computes a prospect's current score breakdown without
// persisting it. Optional; the state view omits the breakdown when nil.
type ScoreReader interface {
	Breakdown(ctx context.Context, orgID, prospectID string) (domain.ScoreBreakdown, error)
}

// Handlers holds the service dependencies behind the HTTP surface.
type Handlers struct {
	prospects    ProspectStore
	sequences    SequenceStore
	templates    TemplateStore
	renderCache  TemplateInvalidator
	interactions InteractionReader
	enrollments  Enroller
	suppressions Suppressions
	ingestor     Ingestor
	capability   ChannelResolver
	plans        PlanLookup
	scores       ScoreReader
}

// NewHandlers wires the handler set.
func NewHandlers(
	prospects ProspectStore,
	sequences SequenceStore,
	templates TemplateStore,
	renderCache TemplateInvalidator,
	interactions InteractionReader,
	enrollments Enroller,
	suppressions Suppressions,
	ingestor Ingestor,
	capability ChannelResolver,
	plans PlanLookup,
	scores ScoreReader,
) *Handlers {
	return &Handlers{
		prospects:    prospects,
		sequences:    sequences,
		templates:    templates,
		renderCache:  renderCache,
		interactions: interactions,
		enrollments:  enrollments,
		suppressions: suppressions,
		ingestor:     ingestor,
		capability:   capability,
		plans:        plans,
		scores:       scores,
	}
}

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps list data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta carries paging metadata for list responses.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination extracts page and limit from query params with defaults.
// maxLimit caps the maximum allowed limit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// NewPaginatedResponse builds a PaginatedResponse from data, params and total.
func NewPaginatedResponse(data interface{}, params PaginationParams, total int) PaginatedResponse {
	totalPages := int(math.Ceil(float64(total) / float64(params.Limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    params.Page < totalPages,
		},
	}
}
