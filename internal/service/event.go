package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EventService interface {
	Create(ctx context.Context, req *dto.UpsertEventRequest) (*model.Event, error)
	Update(ctx context.Context, id string, req *dto.UpsertEventRequest) (*model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListPublished(ctx context.Context) ([]model.Event, error)
}

type eventServiceImpl struct {
	eventRepo repository.EventRepository
}

func NewEventService(eventRepo repository.EventRepository) EventService {
	return &eventServiceImpl{eventRepo: eventRepo}
}

func (s *eventServiceImpl) Create(ctx context.Context, req *dto.UpsertEventRequest) (*model.Event, error) {
	fee, pct, err := parseEventAmounts(req)
	if err != nil {
		return nil, err
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Name)
	}

	event := &model.Event{
		ID:                   model.NewID(),
		Name:                 req.Name,
		Slug:                 slug,
		Description:          req.Description,
		Venue:                req.Venue,
		StartsAt:             req.StartsAt,
		RegistrationClosesAt: req.RegistrationClosesAt,
		FeePerStudent:        fee,
		Currency:             strings.ToUpper(req.Currency),
		DiscountMinStudents:  req.DiscountMinStudents,
		DiscountPercentage:   pct,
		Published:            req.Published,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: slug %s already in use", ErrValidation, slug)
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (s *eventServiceImpl) Update(ctx context.Context, id string, req *dto.UpsertEventRequest) (*model.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}

	fee, pct, err := parseEventAmounts(req)
	if err != nil {
		return nil, err
	}

	event.Name = req.Name
	if req.Slug != "" {
		event.Slug = req.Slug
	}
	event.Description = req.Description
	event.Venue = req.Venue
	event.StartsAt = req.StartsAt
	event.RegistrationClosesAt = req.RegistrationClosesAt
	event.FeePerStudent = fee
	event.Currency = strings.ToUpper(req.Currency)
	event.DiscountMinStudents = req.DiscountMinStudents
	event.DiscountPercentage = pct
	event.Published = req.Published

	if err := s.eventRepo.Update(ctx, event); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: slug %s already in use", ErrValidation, event.Slug)
		}
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}
	return event, nil
}

func (s *eventServiceImpl) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	event, err := s.eventRepo.FindBySlug(ctx, slug)
	if err != nil || !event.Published {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, slug)
	}
	return event, nil
}

func (s *eventServiceImpl) ListPublished(ctx context.Context) ([]model.Event, error) {
	return s.eventRepo.ListPublished(ctx)
}

func parseEventAmounts(req *dto.UpsertEventRequest) (fee, pct decimal.Decimal, err error) {
	fee, err = decimal.NewFromString(req.FeePerStudent)
	if err != nil || fee.IsNegative() {
		return fee, pct, fmt.Errorf("%w: invalid fee_per_student %q", ErrValidation, req.FeePerStudent)
	}

	pct = decimal.Zero
	if req.DiscountPercentage != "" {
		pct, err = decimal.NewFromString(req.DiscountPercentage)
		if err != nil {
			return fee, pct, fmt.Errorf("%w: invalid discount_percentage %q", ErrValidation, req.DiscountPercentage)
		}
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fee, pct, fmt.Errorf("%w: discount_percentage must be between 0 and 100", ErrValidation)
	}
	return fee, pct, nil
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
