package service

import (
	"context"
	"errors"
	"strings"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Actor is the authenticated caller of a product operation.
type Actor struct {
	UserID string
	Role   models.Role
}

type ProductInput struct {
	Name        string
	Description string
	Category    string
	Price       float64
	Unit        string
	Quantity    int
	Images      []string
	IsAvailable *bool
}

type ProductService struct {
	products ProductStore
	logger   *logrus.Logger
}

func NewProductService(products ProductStore, logger *logrus.Logger) *ProductService {
	return &ProductService{
		products: products,
		logger:   logger,
	}
}

func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return products, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if product == nil {
		return nil, apperr.NotFound("Product not found")
	}
	return product, nil
}

func (s *ProductService) Create(ctx context.Context, actor Actor, in ProductInput) (*models.Product, error) {
	if !actor.Role.OneOf(models.RoleFarmer, models.RoleAdmin) {
		return nil, apperr.Forbidden("Only farmers can list products")
	}

	product := &models.Product{
		ID:          uuid.New().String(),
		FarmerID:    actor.UserID,
		IsAvailable: true,
	}
	applyProductInput(product, in)

	if err := s.products.Create(ctx, product); err != nil {
		return nil, apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": product.ID,
		"farmer_id":  product.FarmerID,
	}).Info("Product created")

	return product, nil
}

func (s *ProductService) Update(ctx context.Context, actor Actor, id string, in ProductInput) (*models.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if product.FarmerID != actor.UserID && !actor.Role.OneOf(models.RoleStaff, models.RoleAdmin) {
		return nil, apperr.Forbidden("Not allowed to modify this product")
	}

	applyProductInput(product, in)
	if err := s.products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Product not found")
		}
		return nil, apperr.Internal(err)
	}

	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, actor Actor, id string) error {
	product, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if product.FarmerID != actor.UserID && actor.Role != models.RoleAdmin {
		return apperr.Forbidden("Not allowed to delete this product")
	}

	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Product not found")
		}
		return apperr.Internal(err)
	}

	s.logger.WithField("product_id", id).Info("Product deleted")
	return nil
}

func applyProductInput(p *models.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.Category = strings.ToLower(strings.TrimSpace(in.Category))
	p.Price = in.Price
	p.Unit = in.Unit
	p.Quantity = in.Quantity
	p.Images = in.Images
	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
}
