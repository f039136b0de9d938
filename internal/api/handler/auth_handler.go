package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/market-chat/internal/api/middleware"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/response"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 注册
// @Summary 注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response{data=model.UserSummary}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	u, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "User registered", u.Summary())
}

// Login 登录，成功后写入 httpOnly 的 token cookie
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	token, u, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.jwtCfg.CookieName, token, int(h.jwtCfg.Expiration.Seconds()), "/", "", h.jwtCfg.Secure, true)
	response.SuccessWithMessage(c, "Logged in", gin.H{"user": u.Summary(), "token": token})
}

// Logout 清除 token cookie
// @Summary 退出登录
// @Tags 认证
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.jwtCfg.CookieName, "", -1, "/", "", h.jwtCfg.Secure, true)
	response.SuccessWithMessage(c, "Logged out", nil)
}

// Me 当前登录用户
// @Summary 当前用户
// @Tags 认证
// @Produce json
// @Success 200 {object} response.Response{data=model.Principal}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	response.Success(c, middleware.CurrentPrincipal(c))
}

// SwitchRole 在买家与卖家之间切换
// @Summary 切换角色
// @Tags 认证
// @Produce json
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 403 {object} response.Response
// @Router /api/v1/auth/switch-role [patch]
func (h *Handler) SwitchRole(c *gin.Context) {
	role, err := h.authService.SwitchRole(c.Request.Context(), middleware.CurrentPrincipal(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Role switched successfully to "+role, gin.H{"role": role})
}
