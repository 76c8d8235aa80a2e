package campaign

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a campaign
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// SyncStatus is the state of the background group settings sync of a campaign
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
)

const (
	MinMembersPerGroup = 5
	MaxMembersPerGroup = 1000

	// GroupNumberPlaceholder is replaced by the group number in GroupNameTemplate
	GroupNumberPlaceholder = "#{group_number}"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusActive, StatusArchived},
	StatusActive:    {StatusPaused, StatusCompleted, StatusDraft, StatusArchived},
	StatusPaused:    {StatusActive, StatusCompleted, StatusArchived},
	StatusCompleted: {StatusArchived},
	StatusArchived:  {},
}

// Campaign is a named container for capacity-bounded WhatsApp groups
type Campaign struct {
	ID                  int
	CompanyID           int
	Name                string
	Status              Status
	InstanceID          string
	GroupNameTemplate   string
	GroupDescription    string
	GroupImageURL       string
	OnlyAdminsSend      bool
	MaxMembersPerGroup  int
	AutoCreateNewGroups bool
	DistributorSlug     string
	SettingsSyncStatus  SyncStatus
	SettingsSyncTotal   int
	SettingsSyncDone    int
	SettingsSyncFailed  int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CampaignGroup is one WhatsApp group of a campaign. Capacity is frozen at creation.
type CampaignGroup struct {
	ID              int
	CampaignID      int
	GroupNumber     int
	ExternalGroupID string
	InviteLink      string
	MemberCount     int
	Capacity        int
	CreatedAt       time.Time
}

// GroupMembership binds a phone to exactly one group of a campaign
type GroupMembership struct {
	ID         int
	CampaignID int
	GroupID    int
	Phone      string
	Name       string
	JoinedAt   time.Time
}

// Registration is the outcome of registering a phone into a campaign
type Registration struct {
	GroupID           int
	GroupNumber       int
	InviteLink        string
	AlreadyRegistered bool
}

// Summary is the public capacity overview of a campaign
type Summary struct {
	Name              string
	Status            Status
	GroupCount        int
	TotalCapacity     int
	TotalMembers      int
	AvailableSlots    int
	AutoCreateEnabled bool
	AcceptingMembers  bool
}

func (g *CampaignGroup) IsFull() bool {
	return g.MemberCount >= g.Capacity
}

func (g *CampaignGroup) AvailableSlots() int {
	if g.IsFull() {
		return 0
	}
	return g.Capacity - g.MemberCount
}

// ValidMaxMembersPerGroup reports whether n is an allowed group capacity for a campaign edit
func ValidMaxMembersPerGroup(n int) bool {
	return n >= MinMembersPerGroup && n <= MaxMembersPerGroup
}

// AcceptsRegistrations reports whether new members may join the campaign
func (c *Campaign) AcceptsRegistrations() bool {
	return c.Status == StatusActive
}

// GroupName renders the name of the n-th group
func (c *Campaign) GroupName(groupNumber int) string {
	number := strconv.Itoa(groupNumber)
	if !strings.Contains(c.GroupNameTemplate, GroupNumberPlaceholder) {
		base := strings.TrimSpace(c.GroupNameTemplate)
		if base == "" {
			base = c.Name
		}
		return base + " #" + number
	}
	return strings.ReplaceAll(c.GroupNameTemplate, GroupNumberPlaceholder, number)
}

func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether a campaign may move from one status to another
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HighestOpenGroup returns the highest-numbered group that still has room, or nil
func HighestOpenGroup(groups []CampaignGroup) *CampaignGroup {
	var open *CampaignGroup
	for i := range groups {
		if groups[i].IsFull() {
			continue
		}
		if open == nil || groups[i].GroupNumber > open.GroupNumber {
			open = &groups[i]
		}
	}
	return open
}

// NextGroupNumber returns max(existing)+1, starting at 1
func NextGroupNumber(groups []CampaignGroup) int {
	next := 1
	for _, g := range groups {
		if g.GroupNumber >= next {
			next = g.GroupNumber + 1
		}
	}
	return next
}

// Summarize builds the public capacity overview from a campaign and its groups
func Summarize(c *Campaign, groups []CampaignGroup) Summary {
	summary := Summary{
		Name:              c.Name,
		Status:            c.Status,
		GroupCount:        len(groups),
		AutoCreateEnabled: c.AutoCreateNewGroups,
		AcceptingMembers:  c.AcceptsRegistrations(),
	}
	for i := range groups {
		summary.TotalCapacity += groups[i].Capacity
		summary.TotalMembers += groups[i].MemberCount
		summary.AvailableSlots += groups[i].AvailableSlots()
	}
	if summary.AcceptingMembers && !summary.AutoCreateEnabled && summary.AvailableSlots == 0 {
		summary.AcceptingMembers = false
	}
	return summary
}

// SettingsProgress is the polling view of a group settings sync
type SettingsProgress struct {
	Status             SyncStatus
	ProcessedCount     int
	TotalCount         int
	FailedCount        int
	ProgressPercentage int
}

func (c *Campaign) SettingsProgress() SettingsProgress {
	status := c.SettingsSyncStatus
	if status == "" {
		status = SyncIdle
	}
	percentage := 0
	if c.SettingsSyncTotal > 0 {
		percentage = int(math.Round(float64(c.SettingsSyncDone) / float64(c.SettingsSyncTotal) * 100))
		if percentage > 100 {
			percentage = 100
		}
	} else if status == SyncCompleted {
		percentage = 100
	}
	return SettingsProgress{
		Status:             status,
		ProcessedCount:     c.SettingsSyncDone,
		TotalCount:         c.SettingsSyncTotal,
		FailedCount:        c.SettingsSyncFailed,
		ProgressPercentage: percentage,
	}
}
