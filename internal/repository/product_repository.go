package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/market-chat/internal/model"
)

// ProductRepository 商品目录（只读展示字段，Create 用于初始化数据）
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	Product(ctx context.Context, id string) (*model.ProductSummary, error)
	Products(ctx context.Context, ids []string) (map[string]*model.ProductSummary, error)
}

type productRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepository{db: db} }

func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProductAvailable
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepository) Product(ctx context.Context, id string) (*model.ProductSummary, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return p.Summary(), nil
}

func (r *productRepository) Products(ctx context.Context, ids []string) (map[string]*model.ProductSummary, error) {
	out := make(map[string]*model.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].Summary()
	}
	return out, nil
}
