package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/pkg/apperr"
)

// UserDirectory 用户目录（点查 + 批量）
type UserDirectory interface {
	User(ctx context.Context, id string) (*model.UserSummary, error)
	Users(ctx context.Context, ids []string) (map[string]*model.UserSummary, error)
}

// ProductDirectory 商品目录（点查 + 批量）
type ProductDirectory interface {
	Product(ctx context.Context, id string) (*model.ProductSummary, error)
	Products(ctx context.Context, ids []string) (map[string]*model.ProductSummary, error)
}

var validate = validator.New()

// 固定提示，优先于按字段名拼出的提示
var fieldMessages = map[string]string{
	"SenderID":   "Invalid sender ID",
	"ReceiverID": "Invalid receiver or product ID",
	"ProductID":  "Invalid receiver or product ID",
	"Body":       "Message content cannot be empty",
	"Role":       "Invalid role",
}

// validationError 把 validator 的第一条错误转换成面向用户的提示
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid input")
	}
	fe := verrs[0]
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return apperr.Validation(msg)
	}
	name := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return apperr.Validation(name + " is required")
	}
	return apperr.Validation("invalid " + name)
}

// lookupError 目录未命中映射为 404，其余为内部错误
func lookupError(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Internal("lookup "+what, err)
}
