package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bastelix/sommerfest-quiz-sub007/core"
	web "github.com/bastelix/sommerfest-quiz-sub007/web/common"
)

type Endpoint struct {
	service *core.TenantService
}

func Register(r *gin.RouterGroup, service *core.TenantService) {
	endpoint := &Endpoint{service: service}
	r.POST("/tenants", endpoint.Create)
	r.GET("/tenants", endpoint.List)
	r.GET("/tenants/export", endpoint.Export)
	r.POST("/tenants/sync", endpoint.Sync)
	r.GET("/tenants/:subdomain", endpoint.Get)
	r.GET("/tenants/:subdomain/exists", endpoint.Exists)
	r.PATCH("/tenants/:subdomain", endpoint.Update)
	r.GET("/tenants/:subdomain/limits", endpoint.Limits)
	r.PUT("/tenants/:subdomain/limits", endpoint.SetLimits)
	r.DELETE("/tenants/:subdomain", endpoint.Delete)
}

// status maps the core error taxonomy onto HTTP codes. The error kind is
// surfaced verbatim so the admin UI can show it.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrTenantExists):
		c.JSON(http.StatusConflict, web.NewErrorResponse(core.ErrTenantExists.Error()))
	case errors.Is(err, core.ErrInvalidPlan):
		c.JSON(http.StatusUnprocessableEntity, web.NewErrorResponse(core.ErrInvalidPlan.Error()))
	case core.IsLimitExceeded(err):
		c.JSON(http.StatusUnprocessableEntity, web.NewErrorResponse(err.Error()))
	case errors.Is(err, core.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, web.NewErrorResponse(core.ErrTenantNotFound.Error()))
	default:
		c.JSON(http.StatusInternalServerError, web.NewErrorResponse(err.Error()))
	}
}

type TenantCreateDTO struct {
	UID       string  `json:"uid" binding:"required"`
	Subdomain string  `json:"subdomain" binding:"required,subdomain"`
	Plan      *string `json:"plan,omitempty"`

	BillingCustomerID     *string `json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string `json:"billing_subscription_id,omitempty"`
	BillingPriceID        *string `json:"billing_price_id,omitempty"`
	BillingStatus         *string `json:"billing_status,omitempty"`

	ImprintName   *string `json:"imprint_name,omitempty"`
	ImprintStreet *string `json:"imprint_street,omitempty"`
	ImprintZip    *string `json:"imprint_zip,omitempty"`
	ImprintCity   *string `json:"imprint_city,omitempty"`
	ImprintEmail  *string `json:"imprint_email,omitempty" binding:"omitempty,email"`

	CustomLimits map[string]int `json:"custom_limits,omitempty"`
}

func (ep *Endpoint) Create(c *gin.Context) {
	var dto TenantCreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, web.NewErrorResponse(web.FormatBindingError(err)))
		return
	}

	err := ep.service.CreateTenant(c.Request.Context(), core.CreateParams{
		UID:                   dto.UID,
		Subdomain:             dto.Subdomain,
		Plan:                  dto.Plan,
		BillingCustomerID:     dto.BillingCustomerID,
		BillingSubscriptionID: dto.BillingSubscriptionID,
		BillingPriceID:        dto.BillingPriceID,
		BillingStatus:         dto.BillingStatus,
		ImprintName:           dto.ImprintName,
		ImprintStreet:         dto.ImprintStreet,
		ImprintZip:            dto.ImprintZip,
		ImprintCity:           dto.ImprintCity,
		ImprintEmail:          dto.ImprintEmail,
		CustomLimits:          dto.CustomLimits,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, web.NewSuccessResponse(gin.H{"subdomain": core.NormalizeSubdomain(dto.Subdomain)}))
}

func (ep *Endpoint) Delete(c *gin.Context) {
	if err := ep.service.DeleteTenant(c.Request.Context(), c.Param("subdomain")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ep *Endpoint) List(c *gin.Context) {
	list, err := ep.service.GetAll(c.Query("q"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, web.NewSearchResponse(list, int64(len(list))))
}

func (ep *Endpoint) Get(c *gin.Context) {
	row, err := ep.service.GetBySubdomain(c.Param("subdomain"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, web.NewErrorResponse(core.ErrTenantNotFound.Error()))
		return
	}
	c.JSON(http.StatusOK, web.NewSuccessResponse(row))
}

// Exists probes whether the candidate subdomain is taken, including
// reserved names and schemas created out of band.
func (ep *Endpoint) Exists(c *gin.Context) {
	taken, err := ep.service.Exists(c.Request.Context(), c.Param("subdomain"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	status := http.StatusNotFound
	if taken {
		status = http.StatusOK
	}
	c.JSON(status, web.NewSuccessResponse(gin.H{"exists": taken}))
}

type TenantUpdateDTO struct {
	Plan          *string    `json:"plan,omitempty"`
	PlanStartedAt *time.Time `json:"plan_started_at,omitempty"`

	BillingCustomerID     *string    `json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string    `json:"billing_subscription_id,omitempty"`
	BillingPriceID        *string    `json:"billing_price_id,omitempty"`
	BillingStatus         *string    `json:"billing_status,omitempty"`
	BillingPeriodEnd      *time.Time `json:"billing_period_end,omitempty"`
	BillingCancelAtEnd    *bool      `json:"billing_cancel_at_period_end,omitempty"`

	ImprintName   *string `json:"imprint_name,omitempty"`
	ImprintStreet *string `json:"imprint_street,omitempty"`
	ImprintZip    *string `json:"imprint_zip,omitempty"`
	ImprintCity   *string `json:"imprint_city,omitempty"`
	ImprintEmail  *string `json:"imprint_email,omitempty" binding:"omitempty,email"`

	CustomLimits map[string]int `json:"custom_limits,omitempty"`
}

func (ep *Endpoint) Update(c *gin.Context) {
	var dto TenantUpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, web.NewErrorResponse(web.FormatBindingError(err)))
		return
	}

	err := ep.service.UpdateProfile(c.Request.Context(), c.Param("subdomain"), core.UpdateProfileParams{
		Plan:                  dto.Plan,
		PlanStartedAt:         dto.PlanStartedAt,
		BillingCustomerID:     dto.BillingCustomerID,
		BillingSubscriptionID: dto.BillingSubscriptionID,
		BillingPriceID:        dto.BillingPriceID,
		BillingStatus:         dto.BillingStatus,
		BillingPeriodEnd:      dto.BillingPeriodEnd,
		BillingCancelAtEnd:    dto.BillingCancelAtEnd,
		ImprintName:           dto.ImprintName,
		ImprintStreet:         dto.ImprintStreet,
		ImprintZip:            dto.ImprintZip,
		ImprintCity:           dto.ImprintCity,
		ImprintEmail:          dto.ImprintEmail,
		CustomLimits:          dto.CustomLimits,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, web.NewSuccessResponse(gin.H{}))
}

func (ep *Endpoint) Limits(c *gin.Context) {
	sub := c.Param("subdomain")

	plan, err := ep.service.GetPlanBySubdomain(sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	limits, err := ep.service.GetLimitsBySubdomain(sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	custom, err := ep.service.GetCustomLimitsBySubdomain(sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, web.NewSuccessResponse(gin.H{
		"plan":          plan,
		"limits":        limits,
		"custom_limits": custom,
	}))
}

type CustomLimitsDTO struct {
	CustomLimits map[string]int `json:"custom_limits" binding:"required"`
}

func (ep *Endpoint) SetLimits(c *gin.Context) {
	var dto CustomLimitsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, web.NewErrorResponse(web.FormatBindingError(err)))
		return
	}

	if err := ep.service.SetCustomLimits(c.Request.Context(), c.Param("subdomain"), dto.CustomLimits); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, web.NewSuccessResponse(gin.H{}))
}

func (ep *Endpoint) Sync(c *gin.Context) {
	result, err := ep.service.ImportMissing(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
