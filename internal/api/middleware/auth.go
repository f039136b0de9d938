package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/jwt"
	"github.com/d60-Lab/market-chat/pkg/response"
)

const principalKey = "principal"

// Auth 解析 token（cookie / Bearer / ?token=），失败直接 401
func Auth(auth service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.ResolvePrincipal(c.Request.Context(), jwt.FromRequest(c.Request, cookieName))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRoles 只放行指定角色，需放在 Auth 之后
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			response.Unauthorized(c, "not logged in")
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			response.Forbidden(c, "you do not have permission to perform this action")
			return
		}
		c.Next()
	}
}

// CurrentPrincipal 当前请求的已认证身份，未经过 Auth 时为 nil
func CurrentPrincipal(c *gin.Context) *model.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

// SetPrincipal 测试或内部调用时直接注入身份
func SetPrincipal(c *gin.Context, p *model.Principal) {
	c.Set(principalKey, p)
}
