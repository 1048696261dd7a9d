package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/interfaces"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
)

type CreateDomainRequest struct {
	ProjectID  string `json:"projectId" binding:"required"`
	Domain     string `json:"domain" binding:"required"`
	IncludeWWW bool   `json:"includeWww"`
}

type SetIncludeWWWRequest struct {
	IncludeWWW *bool `json:"includeWww" binding:"required"`
}

type DomainResponse struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"projectId"`
	Domain     string  `json:"domain"`
	Verified   bool    `json:"verified"`
	VerifiedAt *string `json:"verifiedAt"`
	SSLState   *string `json:"sslState"`
	IncludeWWW bool    `json:"includeWww"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}

// VerifyResponse is returned with 200 for every platform-side outcome.
// nextRetryIn is in milliseconds and null when no retry is advised.
type VerifyResponse struct {
	Verified       bool                        `json:"verified"`
	Verification   []dto.VerificationChallenge `json:"verification"`
	SSL            *dto.SSLStatus              `json:"ssl"`
	Configured     bool                        `json:"configured"`
	Error          *string                     `json:"error"`
	RetryScheduled bool                        `json:"retryScheduled"`
	NextRetryIn    *int64                      `json:"nextRetryIn"`
	Diagnostics    *dto.DNSObservation         `json:"diagnostics,omitempty"`
}

type OperationLogResponse struct {
	ID        string                 `json:"id"`
	DomainID  string                 `json:"domainId"`
	Event     string                 `json:"event"`
	Level     string                 `json:"level"`
	CreatedAt string                 `json:"createdAt"`
	Details   map[string]interface{} `json:"details"`
}

type DomainHandler struct {
	domainService interfaces.DomainService
}

func NewDomainHandler(domainService interfaces.DomainService) *DomainHandler {
	return &DomainHandler{
		domainService: domainService,
	}
}

func (h *DomainHandler) CreateDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.CreateDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req CreateDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tracing.TagProject(span, req.ProjectID)

		domain, err := h.domainService.CreateDomain(ctx, req.ProjectID, req.Domain, req.IncludeWWW)
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, mapDomain(domain))
	}
}

func (h *DomainHandler) GetDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.GetDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainService.GetDomain(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, mapDomain(domain))
	}
}

func (h *DomainHandler) ListProjectDomains() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.ListProjectDomains")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		projectID := strings.TrimSpace(c.Param("projectId"))
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing project id"})
			return
		}

		domains, err := h.domainService.GetProjectDomains(ctx, projectID)
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		response := make([]DomainResponse, 0, len(domains))
		for i := range domains {
			response = append(response, mapDomain(&domains[i]))
		}
		c.JSON(http.StatusOK, gin.H{"domains": response})
	}
}

func (h *DomainHandler) RemoveDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.RemoveDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if err := h.domainService.RemoveDomain(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "removed"})
	}
}

// VerifyDomain runs one verification attempt. The optional ?attempt query
// parameter carries the caller's attempt counter for backoff; ?domain lets
// the caller assert which hostname it expects.
func (h *DomainHandler) VerifyDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.VerifyDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		attempt := 1
		if raw := c.Query("attempt"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "attempt must be an integer"})
				return
			}
			attempt = parsed
		}

		result, err := h.domainService.Verify(ctx, c.Param("id"), c.Query("domain"), attempt)
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}
		span.LogFields(tracingLog.Bool("response.verified", result.Verified))

		c.JSON(http.StatusOK, mapVerificationResult(result))
	}
}

func (h *DomainHandler) SetIncludeWWW() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.SetIncludeWWW")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req SetIncludeWWWRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		domainID := c.Param("id")
		if err := h.domainService.SetIncludeWWW(ctx, domainID, "", "", *req.IncludeWWW); err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		domain, err := h.domainService.GetDomain(ctx, domainID)
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, mapDomain(domain))
	}
}

func (h *DomainHandler) GetOperationLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.GetOperationLogs")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		logs, err := h.domainService.GetOperationLogs(ctx, c.Param("id"), limit)
		if err != nil {
			tracing.TraceErr(span, err)
			writeError(c, err)
			return
		}

		response := make([]OperationLogResponse, 0, len(logs))
		for _, entry := range logs {
			response = append(response, OperationLogResponse{
				ID:        entry.ID,
				DomainID:  entry.DomainID,
				Event:     entry.Event.String(),
				Level:     string(entry.Level),
				CreatedAt: entry.CreatedAt.Format(timeFormat),
				Details:   entry.Details,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": response})
	}
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func mapDomain(domain *models.Domain) DomainResponse {
	response := DomainResponse{
		ID:         domain.ID,
		ProjectID:  domain.ProjectID,
		Domain:     domain.Domain,
		Verified:   domain.Verified,
		IncludeWWW: domain.IncludeWWW,
		CreatedAt:  domain.CreatedAt.Format(timeFormat),
		UpdatedAt:  domain.UpdatedAt.Format(timeFormat),
	}
	if domain.VerifiedAt != nil {
		verifiedAt := domain.VerifiedAt.Format(timeFormat)
		response.VerifiedAt = &verifiedAt
	}
	if domain.SSLState != "" {
		sslState := domain.SSLState.String()
		response.SSLState = &sslState
	}
	return response
}

func mapVerificationResult(result *dto.VerificationResult) VerifyResponse {
	response := VerifyResponse{
		Verified:       result.Verified,
		Verification:   result.Verification,
		SSL:            result.SSL,
		Configured:     result.Configured,
		RetryScheduled: result.ShouldRetry,
		Diagnostics:    result.Diagnostics,
	}
	if result.Error != "" {
		message := result.Error
		response.Error = &message
	}
	if result.ShouldRetry {
		delay := result.NextRetryDelay.Milliseconds()
		response.NextRetryIn = &delay
	}
	return response
}

// writeError maps service errors to HTTP statuses. Only local input problems
// and unexpected failures reach this point; platform outcomes of a verify
// call are part of its 200 response.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, er.ErrInvalidInput),
		errors.Is(err, er.ErrInvalidHostname),
		errors.Is(err, er.ErrHostnameMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, er.ErrDomainNotFound):
		status = http.StatusNotFound
	case errors.Is(err, er.ErrDomainAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, er.ErrNotApexDomain):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, er.ErrCompensationFailed):
		status = http.StatusInternalServerError
	case errors.Is(err, er.ErrPlatformUnavailable),
		errors.Is(err, er.ErrPlatformNotConfigured),
		errors.Is(err, er.ErrCompanionProvisionFailed):
		status = http.StatusBadGateway
	}

	message := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, er.ErrCompensationFailed) {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}
