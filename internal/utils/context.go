package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	Tenant    string
	UserId    string
	UserEmail string
	RequestId string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

var (
	TenantHeaders    = []string{"X-Tenant", "Tenant", "TenantName"}
	UserIdHeaders    = []string{"X-User-Id", "UserId"}
	UserEmailHeaders = []string{"X-User-Email", "UserEmail"}
)

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		Tenant:    firstHeader(c, TenantHeaders),
		UserId:    firstHeader(c, UserIdHeaders),
		UserEmail: firstHeader(c, UserEmailHeaders),
		RequestId: GenerateID("req"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func firstHeader(c *gin.Context, headers []string) string {
	for _, header := range headers {
		if value := c.GetHeader(header); value != "" {
			return value
		}
	}
	return ""
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetTenantFromContext(ctx context.Context) string {
	return GetContext(ctx).Tenant
}

func GetUserIdFromContext(ctx context.Context) string {
	return GetContext(ctx).UserId
}

func GetUserEmailFromContext(ctx context.Context) string {
	return GetContext(ctx).UserEmail
}

func GetRequestIdFromContext(ctx context.Context) string {
	return GetContext(ctx).RequestId
}
