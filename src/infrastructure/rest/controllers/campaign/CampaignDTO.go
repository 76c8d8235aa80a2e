package campaign

import (
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
)

type IDRequest struct {
	ID int `uri:"id" binding:"required"`
}

type SlugRequest struct {
	Slug string `uri:"slug" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft active paused completed archived"`
}

type RegisterRequest struct {
	Name  string `json:"name" binding:"max=255"`
	Phone string `json:"phone" binding:"required,phone"`
}

type RegisterResponse struct {
	GroupID           int    `json:"group_id"`
	GroupNumber       int    `json:"group_number"`
	InviteLink        string `json:"invite_link"`
	AlreadyRegistered bool   `json:"already_registered"`
}

type CampaignResponse struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	Status              string `json:"status"`
	InstanceID          string `json:"instance_id"`
	GroupNameTemplate   string `json:"group_name_template"`
	GroupDescription    string `json:"group_description"`
	GroupImageURL       string `json:"group_image_url"`
	OnlyAdminsSend      bool   `json:"only_admins_send"`
	MaxMembersPerGroup  int    `json:"max_members_per_group"`
	AutoCreateNewGroups bool   `json:"auto_create_new_groups"`
	DistributorSlug     string `json:"distributor_slug"`
	UpdatedAt           string `json:"updated_at"`
}

type GroupResponse struct {
	ID              int    `json:"id"`
	GroupNumber     int    `json:"group_number"`
	ExternalGroupID string `json:"external_group_id"`
	InviteLink      string `json:"invite_link"`
	MemberCount     int    `json:"member_count"`
	Capacity        int    `json:"capacity"`
	AvailableSlots  int    `json:"available_slots"`
	CreatedAt       string `json:"created_at"`
}

type SummaryResponse struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	GroupCount        int    `json:"group_count"`
	TotalCapacity     int    `json:"total_capacity"`
	TotalMembers      int    `json:"total_members"`
	AvailableSlots    int    `json:"available_slots"`
	AutoCreateEnabled bool   `json:"auto_create_enabled"`
	AcceptingMembers  bool   `json:"accepting_members"`
}

type SettingsProgressResponse struct {
	Status             string `json:"status"`
	ProcessedCount     int    `json:"processed_count"`
	TotalCount         int    `json:"total_count"`
	FailedCount        int    `json:"failed_count"`
	ProgressPercentage int    `json:"progress_percentage"`
}

func domainToResponseMapper(c *domainCampaign.Campaign) *CampaignResponse {
	return &CampaignResponse{
		ID:                  c.ID,
		Name:                c.Name,
		Status:              string(c.Status),
		InstanceID:          c.InstanceID,
		GroupNameTemplate:   c.GroupNameTemplate,
		GroupDescription:    c.GroupDescription,
		GroupImageURL:       c.GroupImageURL,
		OnlyAdminsSend:      c.OnlyAdminsSend,
		MaxMembersPerGroup:  c.MaxMembersPerGroup,
		AutoCreateNewGroups: c.AutoCreateNewGroups,
		DistributorSlug:     c.DistributorSlug,
		UpdatedAt:           c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func groupsToResponseMapper(groups *[]domainCampaign.CampaignGroup) []GroupResponse {
	out := make([]GroupResponse, 0, len(*groups))
	for i := range *groups {
		g := &(*groups)[i]
		out = append(out, GroupResponse{
			ID:              g.ID,
			GroupNumber:     g.GroupNumber,
			ExternalGroupID: g.ExternalGroupID,
			InviteLink:      g.InviteLink,
			MemberCount:     g.MemberCount,
			Capacity:        g.Capacity,
			AvailableSlots:  g.AvailableSlots(),
			CreatedAt:       g.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func summaryToResponseMapper(s *domainCampaign.Summary) *SummaryResponse {
	return &SummaryResponse{
		Name:              s.Name,
		Status:            string(s.Status),
		GroupCount:        s.GroupCount,
		TotalCapacity:     s.TotalCapacity,
		TotalMembers:      s.TotalMembers,
		AvailableSlots:    s.AvailableSlots,
		AutoCreateEnabled: s.AutoCreateEnabled,
		AcceptingMembers:  s.AcceptingMembers,
	}
}
