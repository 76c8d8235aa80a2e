package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainGateway "go-wa-campaign-api/src/domain/gateway"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore mirrors the conditional SQL of the gorm repositories
type memoryStore struct {
	campaignRepo.CampaignRepositoryInterface
	mu          sync.Mutex
	campaign    domainCampaign.Campaign
	groups      []domainCampaign.CampaignGroup
	memberships []domainCampaign.GroupMembership
	nextID      int
}

func newMemoryStore(c domainCampaign.Campaign) *memoryStore {
	return &memoryStore{campaign: c, nextID: 100}
}

func (s *memoryStore) GetByID(id int) (*domainCampaign.Campaign, error) {
	if id != s.campaign.ID {
		return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
	}
	c := s.campaign
	return &c, nil
}

type groupStore struct{ *memoryStore }
type membershipStore struct{ *memoryStore }

func (g groupStore) ListByCampaign(campaignID int) (*[]domainCampaign.CampaignGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]domainCampaign.CampaignGroup(nil), g.groups...)
	return &out, nil
}

func (g groupStore) GetByID(id int) (*domainCampaign.CampaignGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, group := range g.groups {
		if group.ID == id {
			return &group, nil
		}
	}
	return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
}

func (g groupStore) Create(group *domainCampaign.CampaignGroup) (*domainCampaign.CampaignGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.groups {
		if existing.GroupNumber == group.GroupNumber {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.ConcurrencyConflict)
		}
	}
	g.nextID++
	created := *group
	created.ID = g.nextID
	g.groups = append(g.groups, created)
	return &created, nil
}

func (g groupStore) ReserveSeat(groupID int, membership *domainCampaign.GroupMembership) (*domainCampaign.GroupMembership, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.groups {
		if g.groups[i].ID != groupID {
			continue
		}
		if g.groups[i].MemberCount >= g.groups[i].Capacity {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.ConcurrencyConflict)
		}
		for _, m := range g.memberships {
			if m.CampaignID == membership.CampaignID && m.Phone == membership.Phone {
				return nil, domainErrors.NewAppErrorWithType(domainErrors.DuplicateRegistration)
			}
		}
		g.groups[i].MemberCount++
		g.nextID++
		created := *membership
		created.ID = g.nextID
		created.GroupID = groupID
		g.memberships = append(g.memberships, created)
		return &created, nil
	}
	return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
}

func (g groupStore) ReleaseSeat(membershipID, groupID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.memberships {
		if m.ID == membershipID {
			g.memberships = append(g.memberships[:i], g.memberships[i+1:]...)
			for j := range g.groups {
				if g.groups[j].ID == groupID && g.groups[j].MemberCount > 0 {
					g.groups[j].MemberCount--
				}
			}
			return nil
		}
	}
	return nil
}

func (m membershipStore) GetByPhone(campaignID int, phone string) (*domainCampaign.GroupMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range m.memberships {
		if membership.CampaignID == campaignID && membership.Phone == phone {
			return &membership, nil
		}
	}
	return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
}

func (m membershipStore) ListByCampaigns(campaignIDs []int) (*[]domainCampaign.GroupMembership, error) {
	return nil, nil
}

type memoryMarker struct {
	mu      sync.Mutex
	holders map[int]string
}

func (m *memoryMarker) Acquire(_ context.Context, campaignID int, token string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.holders[campaignID]; held {
		return false, nil
	}
	m.holders[campaignID] = token
	return true, nil
}

func (m *memoryMarker) Release(_ context.Context, campaignID int, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[campaignID] == token {
		delete(m.holders, campaignID)
	}
	return nil
}

type fakeGateway struct {
	domainGateway.IMessagingGateway
	mu            sync.Mutex
	createdGroups []domainGateway.GroupSpec
	added         []string
	createErr     error
	addMemberErr  error
}

func (f *fakeGateway) CreateGroup(_ context.Context, _ string, spec domainGateway.GroupSpec) (*domainGateway.CreatedGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdGroups = append(f.createdGroups, spec)
	n := len(f.createdGroups)
	return &domainGateway.CreatedGroup{
		ExternalGroupID: fmt.Sprintf("ext-%d@g.us", n),
		InviteLink:      fmt.Sprintf("https://chat.whatsapp.com/invite-%d", n),
	}, nil
}

func (f *fakeGateway) AddMember(_ context.Context, _ string, _ string, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addMemberErr != nil {
		return f.addMemberErr
	}
	f.added = append(f.added, phone)
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	slugs []string
}

func (c *countingInvalidator) Invalidate(_ context.Context, slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slugs = append(c.slugs, slug)
}

type fixture struct {
	store       *memoryStore
	gateway     *fakeGateway
	invalidator *countingInvalidator
	useCase     IAllocationUseCase
}

func newFixture(t *testing.T, c domainCampaign.Campaign) *fixture {
	t.Helper()
	store := newMemoryStore(c)
	gw := &fakeGateway{}
	invalidator := &countingInvalidator{}
	uc := NewAllocationUseCase(store, groupStore{store}, membershipStore{store}, gw,
		&memoryMarker{holders: map[int]string{}}, invalidator,
		Config{Attempts: 1000, MarkerTTL: time.Minute, Backoff: time.Millisecond},
		logger.NewNopLogger())
	return &fixture{store: store, gateway: gw, invalidator: invalidator, useCase: uc}
}

func activeCampaign(capacity int, autoCreate bool) domainCampaign.Campaign {
	return domainCampaign.Campaign{
		ID:                  1,
		Name:                "Launch",
		Status:              domainCampaign.StatusActive,
		InstanceID:          "main",
		GroupNameTemplate:   "Launch VIP #{group_number}",
		MaxMembersPerGroup:  capacity,
		AutoCreateNewGroups: autoCreate,
		DistributorSlug:     "launch",
	}
}

func TestRegisterContact_FillsThenSpills(t *testing.T) {
	f := newFixture(t, activeCampaign(5, true))
	ctx := context.Background()

	var numbers []int
	for i := 0; i < 6; i++ {
		reg, err := f.useCase.RegisterContact(ctx, 1, fmt.Sprintf("+55 11 99999-000%d", i), "Member")
		require.NoError(t, err)
		assert.False(t, reg.AlreadyRegistered)
		numbers = append(numbers, reg.GroupNumber)
	}

	assert.Equal(t, []int{1, 1, 1, 1, 1, 2}, numbers)
	require.Len(t, f.gateway.createdGroups, 2)
	assert.Equal(t, "Launch VIP 1", f.gateway.createdGroups[0].Name)
	assert.Equal(t, "Launch VIP 2", f.gateway.createdGroups[1].Name)
	assert.Len(t, f.invalidator.slugs, 6)
}

func TestRegisterContact_Idempotent(t *testing.T) {
	f := newFixture(t, activeCampaign(5, true))
	ctx := context.Background()

	first, err := f.useCase.RegisterContact(ctx, 1, "5511999990001", "Ana")
	require.NoError(t, err)
	second, err := f.useCase.RegisterContact(ctx, 1, "+55 (11) 99999-0001", "Ana")
	require.NoError(t, err)

	assert.True(t, second.AlreadyRegistered)
	assert.Equal(t, first.GroupID, second.GroupID)
	assert.Equal(t, first.InviteLink, second.InviteLink)
	assert.Equal(t, 1, f.store.groups[0].MemberCount)
	assert.Len(t, f.gateway.added, 1)
}

func TestRegisterContact_CapacityExceeded(t *testing.T) {
	f := newFixture(t, activeCampaign(5, false))
	f.store.groups = []domainCampaign.CampaignGroup{{ID: 10, CampaignID: 1, GroupNumber: 1, MemberCount: 5, Capacity: 5}}

	_, err := f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.CapacityExceeded))
	assert.Empty(t, f.gateway.createdGroups)
}

func TestRegisterContact_PicksHighestOpenGroup(t *testing.T) {
	f := newFixture(t, activeCampaign(5, true))
	f.store.groups = []domainCampaign.CampaignGroup{
		{ID: 10, CampaignID: 1, GroupNumber: 1, MemberCount: 2, Capacity: 5},
		{ID: 11, CampaignID: 1, GroupNumber: 2, MemberCount: 5, Capacity: 5},
		{ID: 12, CampaignID: 1, GroupNumber: 3, MemberCount: 4, Capacity: 5},
	}

	reg, err := f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	require.NoError(t, err)
	assert.Equal(t, 3, reg.GroupNumber)
}

func TestRegisterContact_AddMemberFailureReleasesSeat(t *testing.T) {
	f := newFixture(t, activeCampaign(5, true))
	f.store.groups = []domainCampaign.CampaignGroup{{ID: 10, CampaignID: 1, GroupNumber: 1, MemberCount: 1, Capacity: 5}}
	f.gateway.addMemberErr = errors.New("participant rejected")

	_, err := f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ExternalGroupCreationError))
	assert.Equal(t, 1, f.store.groups[0].MemberCount)
	assert.Empty(t, f.store.memberships)
}

func TestRegisterContact_GroupCreationFailure(t *testing.T) {
	f := newFixture(t, activeCampaign(5, true))
	f.gateway.createErr = errors.New("gateway down")

	_, err := f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ExternalGroupCreationError))
	assert.Empty(t, f.store.groups)
}

func TestRegisterContact_Validation(t *testing.T) {
	c := activeCampaign(5, true)
	c.Status = domainCampaign.StatusPaused
	f := newFixture(t, c)

	_, err := f.useCase.RegisterContact(context.Background(), 1, "abc", "")
	assert.True(t, domainErrors.IsType(err, domainErrors.ValidationError))

	_, err = f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	assert.True(t, domainErrors.IsType(err, domainErrors.ValidationError))

	_, err = f.useCase.RegisterContact(context.Background(), 2, "5511999990001", "")
	assert.True(t, domainErrors.IsType(err, domainErrors.NotFound))
}

func TestRegisterContact_ConcurrentNeverExceedsCapacity(t *testing.T) {
	const registrants = 23
	const capacity = 5
	f := newFixture(t, activeCampaign(capacity, true))

	var wg sync.WaitGroup
	errs := make(chan error, registrants)
	for i := 0; i < registrants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.useCase.RegisterContact(context.Background(), 1, fmt.Sprintf("55119999%05d", i), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, f.store.groups, (registrants+capacity-1)/capacity)
	total := 0
	for _, g := range f.store.groups {
		assert.LessOrEqual(t, g.MemberCount, g.Capacity)
		total += g.MemberCount
	}
	assert.Equal(t, registrants, total)
	assert.Len(t, f.store.memberships, registrants)
	assert.Len(t, f.gateway.createdGroups, len(f.store.groups))
}

func TestRegisterContact_CapacityTwoSpillsThirdContact(t *testing.T) {
	f := newFixture(t, activeCampaign(2, true))
	ctx := context.Background()

	var numbers []int
	for _, phone := range []string{"5511999990001", "5511999990002", "5511999990003"} {
		reg, err := f.useCase.RegisterContact(ctx, 1, phone, "")
		require.NoError(t, err)
		numbers = append(numbers, reg.GroupNumber)
	}

	assert.Equal(t, []int{1, 1, 2}, numbers)
	require.Len(t, f.store.groups, 2)
	assert.Equal(t, 2, f.store.groups[0].Capacity)
	assert.Equal(t, 2, f.store.groups[0].MemberCount)
	assert.Equal(t, 2, f.store.groups[1].Capacity)
	assert.Equal(t, 1, f.store.groups[1].MemberCount)
}

func TestRegisterContact_RejectsCampaignWithoutCapacity(t *testing.T) {
	f := newFixture(t, activeCampaign(0, true))

	_, err := f.useCase.RegisterContact(context.Background(), 1, "5511999990001", "")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ValidationError))
	assert.Empty(t, f.gateway.createdGroups)
}
