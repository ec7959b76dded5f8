package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Total is a labelled money figure shown in a section summary.
type Total struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Section is one category of the export.
type Section struct {
	Category models.Category `json:"category"`
	Title    string          `json:"title"`
	Count    int             `json:"count"`
	Totals   []Total         `json:"totals,omitempty"`
	Columns  []string        `json:"columns"`
	Rows     [][]string      `json:"rows"`
}

// OmittedSection records why a selected category is missing from the export.
type OmittedSection struct {
	Category models.Category `json:"category"`
	Reason   string          `json:"reason"`
}

// Payload is the transport-agnostic export of one user's data.
type Payload struct {
	UserID      uuid.UUID        `json:"user_id"`
	OwnerEmail  string           `json:"owner_email"`
	OwnerName   string           `json:"owner_name"`
	Message     string           `json:"message,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     []Section        `json:"summary"`
	Omitted     []OmittedSection `json:"omitted,omitempty"`
	Documents   []Attachment     `json:"-"`
}

// Section returns the section for a category, if present.
func (p *Payload) Section(c models.Category) (Section, bool) {
	for _, s := range p.Summary {
		if s.Category == c {
			return s, true
		}
	}
	return Section{}, false
}

// BaseFilename is "financial-data-<owner email>-<yyyy-mm-dd>".
func (p *Payload) BaseFilename() string {
	owner := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(p.OwnerEmail)
	return fmt.Sprintf("financial-data-%s-%s", owner, p.GeneratedAt.UTC().Format("2006-01-02"))
}

// Renderer produces one document representation of a payload.
type Renderer func(p *Payload) (Attachment, error)

// Builder assembles exports from the selected category sources.
type Builder struct {
	store     Store
	sources   map[models.Category]CategorySource
	renderers []Renderer
	now       func() time.Time
}

func NewBuilder(store Store, sources map[models.Category]CategorySource, renderers ...Renderer) *Builder {
	return &Builder{
		store:     store,
		sources:   sources,
		renderers: renderers,
		now:       time.Now,
	}
}

// Build reads the owner's record and every category flagged in include.
// Only a failure to read the owner is fatal; a category that errors, has no
// source or has no rows is left out and listed in Omitted. Renderer failures
// drop that document only.
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, include models.IncludeData) (*Payload, error) {
	settings, err := b.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if settings.User.Email == "" {
		return nil, fmt.Errorf("load owner: %w: user record has no email", ErrInvalidSettings)
	}

	p := &Payload{
		UserID:      userID,
		OwnerEmail:  settings.User.Email,
		OwnerName:   settings.User.DisplayName(),
		Message:     settings.Message,
		GeneratedAt: b.now().UTC(),
	}

	for _, c := range include.Selected() {
		src, ok := b.sources[c]
		if !ok {
			p.Omitted = append(p.Omitted, OmittedSection{Category: c, Reason: "unavailable"})
			continue
		}
		section, err := src.Fetch(ctx, userID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("fetch %s: %w", c, err)
			}
			slog.Warn("export category unavailable",
				"user_id", userID.String(), "category", string(c), "error", err)
			p.Omitted = append(p.Omitted, OmittedSection{Category: c, Reason: err.Error()})
			continue
		}
		if section.Count == 0 {
			p.Omitted = append(p.Omitted, OmittedSection{Category: c, Reason: "empty"})
			continue
		}
		section.Category = c
		p.Summary = append(p.Summary, section)
	}

	for _, render := range b.renderers {
		doc, err := render(p)
		if err != nil {
			slog.Warn("export document render failed", "user_id", userID.String(), "error", err)
			continue
		}
		p.Documents = append(p.Documents, doc)
	}
	return p, nil
}
