package gateway

import (
	"context"
)

// GroupSpec describes a WhatsApp group to create
type GroupSpec struct {
	Name           string
	Description    string
	ImageURL       string
	OnlyAdminsSend bool
}

// CreatedGroup is the gateway handle of a newly created group
type CreatedGroup struct {
	ExternalGroupID string
	InviteLink      string
}

// GroupSettings are applied to an existing group. Nil fields are left unchanged.
type GroupSettings struct {
	OnlyAdminsSend *bool
	Description    *string
	ImageURL       *string
}

// IMessagingGateway is the external WhatsApp gateway. Every call is bound to the
// gateway instance (connected phone session) identified by instanceID.
type IMessagingGateway interface {
	CreateGroup(ctx context.Context, instanceID string, spec GroupSpec) (*CreatedGroup, error)
	AddMember(ctx context.Context, instanceID string, externalGroupID string, phone string) error
	UpdateGroupSettings(ctx context.Context, instanceID string, externalGroupID string, settings GroupSettings) error
	SendMessage(ctx context.Context, instanceID string, phone string, text string) error
	IsConnected(ctx context.Context, instanceID string) (bool, error)
}
