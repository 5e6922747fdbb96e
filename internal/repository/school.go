package repository

import (
	"context"

	"schoolfest-backend/internal/model"

	"gorm.io/gorm"
)

type SchoolRepository interface {
	Create(ctx context.Context, school *model.School) error
	FindByID(ctx context.Context, id string) (*model.School, error)
	FindByEmail(ctx context.Context, email string) (*model.School, error)
}

type schoolRepositoryImpl struct {
	db *gorm.DB
}

func NewSchoolRepository(db *gorm.DB) SchoolRepository {
	return &schoolRepositoryImpl{db: db}
}

func (r *schoolRepositoryImpl) Create(ctx context.Context, school *model.School) error {
	return r.db.WithContext(ctx).Create(school).Error
}

func (r *schoolRepositoryImpl) FindByID(ctx context.Context, id string) (*model.School, error) {
	var school model.School
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&school).Error
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *schoolRepositoryImpl) FindByEmail(ctx context.Context, email string) (*model.School, error) {
	var school model.School
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&school).Error
	if err != nil {
		return nil, err
	}
	return &school, nil
}
