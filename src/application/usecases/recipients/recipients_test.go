package recipients

import (
	"context"
	"testing"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainContact "go-wa-campaign-api/src/domain/contact"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockContactRepository struct {
	getByIDsFn func(int, []int) (*[]domainContact.Contact, error)
}

func (m *mockContactRepository) GetByIDs(companyID int, ids []int) (*[]domainContact.Contact, error) {
	return m.getByIDsFn(companyID, ids)
}

type mockCampaignRepository struct {
	campaignRepo.CampaignRepositoryInterface
	campaigns []domainCampaign.Campaign
}

func (m *mockCampaignRepository) GetByIDsForCompany(companyID int, ids []int) (*[]domainCampaign.Campaign, error) {
	var out []domainCampaign.Campaign
	for _, c := range m.campaigns {
		if c.CompanyID != companyID {
			continue
		}
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
				break
			}
		}
	}
	return &out, nil
}

type mockMembershipRepository struct {
	campaignRepo.MembershipRepositoryInterface
	memberships []domainCampaign.GroupMembership
}

func (m *mockMembershipRepository) ListByCampaigns(ids []int) (*[]domainCampaign.GroupMembership, error) {
	var out []domainCampaign.GroupMembership
	for _, membership := range m.memberships {
		for _, id := range ids {
			if membership.CampaignID == id {
				out = append(out, membership)
			}
		}
	}
	return &out, nil
}

func newResolver(contacts *mockContactRepository, campaigns *mockCampaignRepository, memberships *mockMembershipRepository) IRecipientResolver {
	if contacts == nil {
		contacts = &mockContactRepository{}
	}
	if campaigns == nil {
		campaigns = &mockCampaignRepository{}
	}
	if memberships == nil {
		memberships = &mockMembershipRepository{}
	}
	return NewRecipientResolver(contacts, campaigns, memberships, logger.NewNopLogger())
}

func phones(recipients []domainMassMessage.Recipient) []string {
	out := make([]string, len(recipients))
	for i, r := range recipients {
		out[i] = r.Phone
	}
	return out
}

func TestResolve_Manual(t *testing.T) {
	resolver := newResolver(nil, nil, nil)
	raw := "+55 11 99999-0001\r\n\n  5511999990002 \n5511999990001\n5511999990003;5511999990004\nnot-a-phone\n"

	recipients, err := resolver.Resolve(context.Background(), domainMassMessage.TargetManual, domainMassMessage.TargetRefs{Raw: raw}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"5511999990001", "5511999990002", "5511999990003", "5511999990004"}, phones(recipients))
	for _, r := range recipients {
		assert.Nil(t, r.GroupID)
	}
}

func TestResolve_ManualLogsRejectedNumbers(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	resolver := NewRecipientResolver(&mockContactRepository{}, &mockCampaignRepository{}, &mockMembershipRepository{}, &logger.Logger{Log: zap.New(core)})
	raw := "5511999990001\n55119999O0002\n123\n\n5511999990003"

	recipients, err := resolver.Resolve(context.Background(), domainMassMessage.TargetManual, domainMassMessage.TargetRefs{Raw: raw}, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"5511999990001", "5511999990003"}, phones(recipients))

	rejected := logs.FilterMessage("Manual recipients rejected as invalid phone numbers").All()
	require.Len(t, rejected, 1)
	fields := rejected[0].ContextMap()
	assert.Equal(t, int64(2), fields["rejected"])
	assert.Equal(t, int64(7), fields["companyID"])
	assert.Equal(t, []interface{}{"55119999O0002", "123"}, fields["samples"])
}

func TestResolve_ManualEmpty(t *testing.T) {
	resolver := newResolver(nil, nil, nil)

	_, err := resolver.Resolve(context.Background(), domainMassMessage.TargetManual, domainMassMessage.TargetRefs{Raw: " \n\r\n"}, 1)
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ValidationError))
}

func TestResolve_Contacts(t *testing.T) {
	contacts := &mockContactRepository{getByIDsFn: func(companyID int, ids []int) (*[]domainContact.Contact, error) {
		assert.Equal(t, 7, companyID)
		assert.Equal(t, []int{2, 1, 3}, ids)
		return &[]domainContact.Contact{
			{ID: 2, Name: "Bia", Phone: "5511999990002"},
			{ID: 1, Name: "Ana", Phone: "+55 11 99999-0002"},
			{ID: 3, Name: "Caio", Phone: "5511999990003"},
		}, nil
	}}
	resolver := newResolver(contacts, nil, nil)

	recipients, err := resolver.Resolve(context.Background(), domainMassMessage.TargetContacts, domainMassMessage.TargetRefs{IDs: []int{2, 1, 3}}, 7)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "Bia", recipients[0].Name)
	assert.Equal(t, "5511999990003", recipients[1].Phone)
}

func TestResolve_CampaignsUnionDedup(t *testing.T) {
	campaigns := &mockCampaignRepository{campaigns: []domainCampaign.Campaign{
		{ID: 1, CompanyID: 7},
		{ID: 2, CompanyID: 7},
	}}
	memberships := &mockMembershipRepository{memberships: []domainCampaign.GroupMembership{
		{CampaignID: 1, GroupID: 10, Phone: "5511999990001"},
		{CampaignID: 1, GroupID: 11, Phone: "5511999990002"},
		{CampaignID: 2, GroupID: 20, Phone: "5511999990002"},
		{CampaignID: 2, GroupID: 20, Phone: "5511999990003"},
	}}
	resolver := newResolver(nil, campaigns, memberships)

	recipients, err := resolver.Resolve(context.Background(), domainMassMessage.TargetCampaigns, domainMassMessage.TargetRefs{IDs: []int{2, 1}}, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"5511999990002", "5511999990003", "5511999990001"}, phones(recipients))
	assert.Equal(t, 20, *recipients[0].GroupID)
	assert.Equal(t, 10, *recipients[2].GroupID)
}

func TestResolve_ForeignCampaign(t *testing.T) {
	campaigns := &mockCampaignRepository{campaigns: []domainCampaign.Campaign{{ID: 1, CompanyID: 7}, {ID: 2, CompanyID: 8}}}
	resolver := newResolver(nil, campaigns, nil)

	_, err := resolver.Resolve(context.Background(), domainMassMessage.TargetCampaigns, domainMassMessage.TargetRefs{IDs: []int{1, 2}}, 7)
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ValidationError))
}
