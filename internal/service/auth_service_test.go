package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/pkg/apperr"
	"github.com/d60-Lab/market-chat/pkg/jwt"
)

func TestAuthService_RegisterLoginResolve(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.users, jwt.NewManager("secret", time.Hour))
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Sam", Email: "Sam@Market.test", Password: "hunter22", Role: model.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, "sam@market.test", u.Email)
	assert.NotEqual(t, "hunter22", u.Password)

	_, err = svc.Register(ctx, RegisterInput{Name: "Sam", Email: "sam@market.test", Password: "hunter22"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	token, logged, err := svc.Login(ctx, "sam@market.test", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	p, err := svc.ResolvePrincipal(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.Equal(t, model.RoleSeller, p.Role)

	_, _, err = svc.Login(ctx, "sam@market.test", "wrong-pass")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	_, _, err = svc.Login(ctx, "nobody@market.test", "hunter22")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestAuthService_SwitchRole(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.users, jwt.NewManager("secret", time.Hour))
	ctx := context.Background()

	u := f.user(t, "flip", model.RoleBuyer)
	role, err := svc.SwitchRole(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleSeller, role)
	role, err = svc.SwitchRole(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, role)

	admin := f.user(t, "root", model.RoleAdmin)
	_, err = svc.SwitchRole(ctx, admin.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestAuthService_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.users, jwt.NewManager("secret", time.Hour))

	for _, in := range []RegisterInput{
		{Name: "", Email: "a@b.co", Password: "hunter22"},
		{Name: "A", Email: "not-an-email", Password: "hunter22"},
		{Name: "A", Email: "a@b.co", Password: "123"},
		{Name: "A", Email: "a@b.co", Password: "hunter22", Role: model.RoleAdmin},
	} {
		_, err := svc.Register(context.Background(), in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), in)
	}
}

func TestAuthService_ResolvePrincipalFailsClosed(t *testing.T) {
	f := newFixture(t)
	tokens := jwt.NewManager("secret", time.Hour)
	svc := NewAuthService(f.users, tokens)
	ctx := context.Background()

	for _, cred := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.ResolvePrincipal(ctx, cred)
		assert.Equal(t, apperr.KindAuth, apperr.KindOf(err), cred)
	}

	// 签名正确但用户不存在
	orphan, err := tokens.Generate("0190f1d4-0000-7000-8000-000000000000")
	require.NoError(t, err)
	_, err = svc.ResolvePrincipal(ctx, orphan)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	other, err := jwt.NewManager("other-secret", time.Hour).Generate(f.user(t, "eve", model.RoleBuyer).ID)
	require.NoError(t, err)
	_, err = svc.ResolvePrincipal(ctx, other)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}
