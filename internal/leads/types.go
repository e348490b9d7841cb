package leads

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lead does not exist in the tenant.
	ErrNotFound     = errors.New("lead not found")
	ErrInvalidStage = errors.New("invalid stage")
	// ErrInvalidReference means a tenant, pipeline or customer id does not exist.
	ErrInvalidReference = errors.New("unknown tenant, pipeline or customer")
)

// Stage is a pipeline stage.
type Stage string

const (
	StageNew       Stage = "new"
	StageContacted Stage = "contacted"
	StageQualified Stage = "qualified"
	StageProposal  Stage = "proposal"
	StageWon       Stage = "won"
	StageLost      Stage = "lost"
)

// InitialStage is where leads created from first contact start.
const InitialStage = StageNew

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageContacted, StageQualified, StageProposal, StageWon, StageLost:
		return true
	}
	return false
}

// PipelineRef is the pipeline a lead sits in, with the customer it belongs to.
type PipelineRef struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
}

// Lead is a CRM contact or prospect.
type Lead struct {
	ID                string       `json:"id"`
	TenantID          string       `json:"tenantId"`
	Name              string       `json:"name"`
	Stage             Stage        `json:"stage"`
	PipelineID        string       `json:"pipelineId,omitempty"`
	CustomerID        string       `json:"customerId,omitempty"`
	Channel           string       `json:"channel,omitempty"`
	ExternalContactID string       `json:"externalContactId,omitempty"`
	Pipeline          *PipelineRef `json:"pipeline,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// ScopeCustomerID returns the customer the lead belongs to: the direct
// relation first, then the pipeline's.
func (l Lead) ScopeCustomerID() string {
	if l.CustomerID != "" {
		return l.CustomerID
	}
	if l.Pipeline != nil {
		return l.Pipeline.CustomerID
	}
	return ""
}

// CreateInput holds the fields accepted when creating a lead.
type CreateInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	Stage      Stage  `json:"stage" validate:"omitempty,oneof=new contacted qualified proposal won lost"`
	PipelineID string `json:"pipelineId" validate:"omitempty,max=64"`
	CustomerID string `json:"customerId" validate:"omitempty,max=64"`
}

// UpdateInput holds optional field changes. Nil fields are left as is; an
// empty string clears the relation.
type UpdateInput struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=200"`
	PipelineID *string `json:"pipelineId" validate:"omitempty,max=64"`
	CustomerID *string `json:"customerId" validate:"omitempty,max=64"`
}

// ContactInput identifies a lead by its external messaging contact.
type ContactInput struct {
	TenantID          string
	Channel           string
	ExternalContactID string
	Name              string
}

// Store persists leads. FindOrCreateByContact must rely on the storage
// layer's unique key so concurrent first contacts converge on one row.
type Store interface {
	Create(ctx context.Context, lead Lead) (Lead, error)
	Get(ctx context.Context, tenantID, id string) (Lead, error)
	List(ctx context.Context, tenantID string, limit int) ([]Lead, error)
	Update(ctx context.Context, lead Lead) (Lead, error)
	Delete(ctx context.Context, tenantID, id string) error
	FindOrCreateByContact(ctx context.Context, lead Lead) (Lead, bool, error)
}
