package recipients

import (
	"context"
	"errors"
	"strings"

	domainContact "go-wa-campaign-api/src/domain/contact"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"
	contactRepo "go-wa-campaign-api/src/infrastructure/repository/database/contact"

	"go.uber.org/zap"
)

// IRecipientResolver expands a job target into an ordered, phone-unique recipient list
type IRecipientResolver interface {
	Resolve(ctx context.Context, targetType domainMassMessage.TargetType, refs domainMassMessage.TargetRefs, companyID int) ([]domainMassMessage.Recipient, error)
}

type Resolver struct {
	contactRepository    contactRepo.ContactRepositoryInterface
	campaignRepository   campaignRepo.CampaignRepositoryInterface
	membershipRepository campaignRepo.MembershipRepositoryInterface
	Logger               *logger.Logger
}

func NewRecipientResolver(
	contactRepository contactRepo.ContactRepositoryInterface,
	campaignRepository campaignRepo.CampaignRepositoryInterface,
	membershipRepository campaignRepo.MembershipRepositoryInterface,
	loggerInstance *logger.Logger,
) IRecipientResolver {
	return &Resolver{
		contactRepository:    contactRepository,
		campaignRepository:   campaignRepository,
		membershipRepository: membershipRepository,
		Logger:               loggerInstance,
	}
}

func (r *Resolver) Resolve(ctx context.Context, targetType domainMassMessage.TargetType, refs domainMassMessage.TargetRefs, companyID int) ([]domainMassMessage.Recipient, error) {
	var (
		recipients []domainMassMessage.Recipient
		err        error
	)
	switch targetType {
	case domainMassMessage.TargetContacts:
		recipients, err = r.fromContacts(refs.IDs, companyID)
	case domainMassMessage.TargetCampaigns:
		recipients, err = r.fromCampaigns(refs.IDs, companyID)
	case domainMassMessage.TargetManual:
		recipients = r.fromManual(refs.Raw, companyID)
	default:
		return nil, domainErrors.NewAppError(errors.New("unknown target type"), domainErrors.ValidationError)
	}
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, domainErrors.NewAppError(errors.New("no valid recipients found for the selected target"), domainErrors.ValidationError)
	}
	r.Logger.Info("Recipients resolved",
		zap.String("targetType", string(targetType)), zap.Int("companyID", companyID), zap.Int("count", len(recipients)))
	return recipients, nil
}

// dedup keeps the first occurrence of every normalized phone and collects
// the phones that do not normalize
type dedup struct {
	seen    map[string]struct{}
	out     []domainMassMessage.Recipient
	invalid []string
}

func newDedup() *dedup {
	return &dedup{seen: map[string]struct{}{}}
}

func (d *dedup) add(rawPhone, name string, groupID *int) {
	phone := domainContact.NormalizePhone(rawPhone)
	if phone == "" {
		d.invalid = append(d.invalid, rawPhone)
		return
	}
	if _, ok := d.seen[phone]; ok {
		return
	}
	d.seen[phone] = struct{}{}
	d.out = append(d.out, domainMassMessage.Recipient{Phone: phone, Name: name, GroupID: groupID})
}

func (r *Resolver) fromContacts(ids []int, companyID int) ([]domainMassMessage.Recipient, error) {
	contacts, err := r.contactRepository.GetByIDs(companyID, ids)
	if err != nil {
		return nil, err
	}
	d := newDedup()
	for _, c := range *contacts {
		d.add(c.Phone, c.Name, nil)
	}
	return d.out, nil
}

func (r *Resolver) fromCampaigns(ids []int, companyID int) ([]domainMassMessage.Recipient, error) {
	campaigns, err := r.campaignRepository.GetByIDsForCompany(companyID, ids)
	if err != nil {
		return nil, err
	}
	owned := make(map[int]bool, len(*campaigns))
	for _, c := range *campaigns {
		owned[c.ID] = true
	}
	var selected []int
	for _, id := range ids {
		if owned[id] {
			selected = append(selected, id)
			owned[id] = false
		}
	}
	if len(selected) != len(*campaigns) || len(selected) == 0 {
		return nil, domainErrors.NewAppError(errors.New("selected campaigns not found"), domainErrors.ValidationError)
	}

	memberships, err := r.membershipRepository.ListByCampaigns(selected)
	if err != nil {
		return nil, err
	}
	byCampaign := map[int][]int{}
	for i, m := range *memberships {
		byCampaign[m.CampaignID] = append(byCampaign[m.CampaignID], i)
	}
	d := newDedup()
	for _, campaignID := range selected {
		for _, i := range byCampaign[campaignID] {
			m := (*memberships)[i]
			groupID := m.GroupID
			d.add(m.Phone, m.Name, &groupID)
		}
	}
	return d.out, nil
}

var manualSeparators = strings.NewReplacer("\r\n", "\n", "\r", "\n", ",", "\n", ";", "\n")

func (r *Resolver) fromManual(raw string, companyID int) []domainMassMessage.Recipient {
	d := newDedup()
	for _, line := range strings.Split(manualSeparators.Replace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d.add(line, "", nil)
	}
	if len(d.invalid) > 0 {
		r.Logger.Warn("Manual recipients rejected as invalid phone numbers",
			zap.Int("companyID", companyID), zap.Int("rejected", len(d.invalid)), zap.Strings("samples", sample(d.invalid, 5)))
	}
	return d.out
}

func sample(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
