package leads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/leadwire/leadwire/internal/events"
)

// Service implements lead CRUD. Every successful mutation is published.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a lead service. publisher may be nil.
func NewService(log *slog.Logger, store Store, publisher events.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    log.With(slog.String("service", "leads")),
	}
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Lead, error) {
	return s.store.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Lead, error) {
	return s.store.List(ctx, tenantID, limit)
}

func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (Lead, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Lead{}, fmt.Errorf("tenant id is required")
	}
	stage := in.Stage
	if stage == "" {
		stage = InitialStage
	}
	if !stage.Valid() {
		return Lead{}, fmt.Errorf("%w %q", ErrInvalidStage, stage)
	}
	lead, err := s.store.Create(ctx, Lead{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       strings.TrimSpace(in.Name),
		Stage:      stage,
		PipelineID: strings.TrimSpace(in.PipelineID),
		CustomerID: strings.TrimSpace(in.CustomerID),
	})
	if err != nil {
		return Lead{}, err
	}
	s.publish(events.LeadCreated, lead.TenantID, lead)
	return lead, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id string, in UpdateInput) (Lead, error) {
	lead, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Lead{}, err
	}
	if in.Name != nil {
		lead.Name = strings.TrimSpace(*in.Name)
	}
	if in.PipelineID != nil {
		lead.PipelineID = strings.TrimSpace(*in.PipelineID)
	}
	if in.CustomerID != nil {
		lead.CustomerID = strings.TrimSpace(*in.CustomerID)
	}
	updated, err := s.store.Update(ctx, lead)
	if err != nil {
		return Lead{}, err
	}
	s.publish(events.LeadUpdated, updated.TenantID, updated)
	return updated, nil
}

// Move changes the lead's pipeline stage. Moving to the current stage is a
// no-op and publishes nothing.
func (s *Service) Move(ctx context.Context, tenantID, id string, stage Stage) (Lead, error) {
	if !stage.Valid() {
		return Lead{}, fmt.Errorf("%w %q", ErrInvalidStage, stage)
	}
	lead, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Lead{}, err
	}
	if lead.Stage == stage {
		return lead, nil
	}
	lead.Stage = stage
	moved, err := s.store.Update(ctx, lead)
	if err != nil {
		return Lead{}, err
	}
	s.publish(events.LeadMoved, moved.TenantID, moved)
	return moved, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.publish(events.LeadDeleted, tenantID, events.DeletedLead{ID: id})
	return nil
}

// FindOrCreateByContact returns the tenant's lead for an external contact,
// creating it in InitialStage on first contact. It does not publish; the
// caller decides which notifications the contact produced.
func (s *Service) FindOrCreateByContact(ctx context.Context, in ContactInput) (Lead, bool, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.ExternalContactID) == "" {
		return Lead{}, false, fmt.Errorf("tenant id and external contact id are required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Channel + ":" + in.ExternalContactID
	}
	return s.store.FindOrCreateByContact(ctx, Lead{
		ID:                uuid.NewString(),
		TenantID:          in.TenantID,
		Name:              name,
		Stage:             InitialStage,
		Channel:           in.Channel,
		ExternalContactID: in.ExternalContactID,
	})
}

func (s *Service) publish(t events.Type, tenantID string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{Type: t, TenantID: tenantID, Payload: payload})
}
