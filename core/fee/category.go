package fee

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
)

// normalizeCategoryName upper-cases and trims `name` ("tuition " -> "TUITION").
func normalizeCategoryName(name string) string {
	return strings.ToUpper(core.CleanString(name))
}

func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	name := normalizeCategoryName(nc.Name)
	if name == "" {
		return Category{}, core.NewInvalidInputError("category name is required")
	}
	now := svc.now()
	cat := Category{
		ID:          newID(),
		Name:        name,
		Description: core.CleanString(nc.Description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cat, err := svc.store.CreateCategory(ctx, cat)
	if err != nil {
		return Category{}, errors.Wrap(err, "creating fee category")
	}
	return cat, nil
}

// QueryCategories returns all categories ordered by name.
func (svc *Service) QueryCategories(ctx context.Context) ([]Category, error) {
	return svc.store.QueryCategories(ctx)
}

func (svc *Service) UpdateCategory(ctx context.Context, id string, uc UpdateCategory) (Category, error) {
	if uc.Name == nil && uc.Description == nil && uc.IsActive == nil {
		return Category{}, ErrNothingToUpdate
	}
	cat, err := svc.store.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if uc.Name != nil {
		name := normalizeCategoryName(*uc.Name)
		if name == "" {
			return Category{}, core.NewInvalidInputError("category name is required")
		}
		cat.Name = name
	}
	if uc.Description != nil {
		cat.Description = core.CleanString(*uc.Description)
	}
	if uc.IsActive != nil {
		cat.IsActive = *uc.IsActive
	}
	cat.UpdatedAt = svc.now()

	cat, err = svc.store.UpdateCategory(ctx, cat)
	if err != nil {
		return Category{}, errors.Wrap(err, "updating fee category")
	}
	return cat, nil
}

// DeleteCategory removes a category no structure references.
func (svc *Service) DeleteCategory(ctx context.Context, id string) error {
	return svc.store.Atomic(ctx, func(tx Repository) error {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountStructuresByCategory(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting fee structures")
		}
		if count > 0 {
			return ErrCategoryInUse
		}
		return tx.DeleteCategory(ctx, id)
	})
}
