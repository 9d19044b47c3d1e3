package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/config"
	"github.com/lstlabs/vaultgate/internal/model"
)

const (
	HeaderOperatorKey    = "X-Operator-Key"
	ContextPrincipalKey  = "principal"
	anonymousPrincipalID = "anonymous"
)

// OperatorTable resolves API keys to principals. Built once from config at
// startup; lookups are read-only afterwards.
type OperatorTable struct {
	byKey map[string]*model.Principal
}

func NewOperatorTable(operators []config.OperatorConfig) *OperatorTable {
	t := &OperatorTable{byKey: make(map[string]*model.Principal)}
	for _, op := range operators {
		if op.APIKey == "" {
			continue
		}
		roles := make([]model.Role, 0, len(op.Roles))
		for _, r := range op.Roles {
			roles = append(roles, model.Role(r))
		}
		t.byKey[op.APIKey] = &model.Principal{ID: op.ID, Name: op.Name, Roles: roles}
	}
	return t
}

func (t *OperatorTable) Lookup(apiKey string) (*model.Principal, bool) {
	p, ok := t.byKey[apiKey]
	return p, ok
}

// AuthMiddleware resolves the operator key header to a principal. Requests
// without a key proceed as an anonymous principal with no roles: holder
// operations (deposit, unstake, claim) are permissionless, privileged ones
// fail the role check downstream.
func AuthMiddleware(table *OperatorTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderOperatorKey)
		if apiKey == "" {
			c.Set(ContextPrincipalKey, &model.Principal{ID: anonymousPrincipalID})
			c.Next()
			return
		}

		p, ok := table.Lookup(apiKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, p)
		c.Next()
	}
}

// Principal pulls the resolved principal out of the request context.
func Principal(c *gin.Context) *model.Principal {
	if v, ok := c.Get(ContextPrincipalKey); ok {
		if p, ok := v.(*model.Principal); ok {
			return p
		}
	}
	return &model.Principal{ID: anonymousPrincipalID}
}
