package model

import "time"

// 商品状态
const (
	ProductAvailable = "available"
	ProductSold      = "sold"
)

// Product 商品目录，聊天模块只读取展示字段
type Product struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Images    []string  `gorm:"serializer:json;type:text" json:"images"`
	Status    string    `gorm:"type:varchar(16);not null;default:available" json:"status"`
	PostedBy  string    `gorm:"type:varchar(36);index;not null" json:"postedBy"`
	IsActive  bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// ProductSummary 会话列表里展示的商品摘要
type ProductSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Images   []string `json:"images"`
	Status   string   `json:"status"`
	PostedBy string   `json:"postedBy"`
}

func (p *Product) Summary() *ProductSummary {
	return &ProductSummary{ID: p.ID, Title: p.Title, Images: p.Images, Status: p.Status, PostedBy: p.PostedBy}
}
