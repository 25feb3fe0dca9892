package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction, so
// repo methods can participate in a caller's transaction without every
// signature growing a *gorm.DB parameter.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
