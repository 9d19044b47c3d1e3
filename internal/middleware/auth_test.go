package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/config"
	"github.com/lstlabs/vaultgate/internal/model"
)

func anyPrincipal() *model.Principal {
	return &model.Principal{ID: "op-test", Roles: []model.Role{model.RoleManager}}
}

func testTable() *OperatorTable {
	return NewOperatorTable([]config.OperatorConfig{
		{ID: "op-1", Name: "ops", APIKey: "key-1", Roles: []string{"MANAGER", "REWARDER"}},
		{ID: "op-2", Name: "admin", APIKey: "key-2", Roles: []string{"ADMIN"}},
		{ID: "op-broken", Name: "no key"},
	})
}

func newAuthRouter(table *OperatorTable) (*gin.Engine, **model.Principal) {
	gin.SetMode(gin.TestMode)
	var seen *model.Principal
	r := gin.New()
	r.Use(AuthMiddleware(table))
	r.GET("/whoami", func(c *gin.Context) {
		seen = Principal(c)
		c.JSON(http.StatusOK, seen)
	})
	return r, &seen
}

func TestAuthResolvesOperatorKey(t *testing.T) {
	r, seen := newAuthRouter(testTable())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderOperatorKey, "key-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	p := *seen
	if p.ID != "op-1" {
		t.Fatalf("principal = %+v", p)
	}
	if !p.HasRole(model.RoleManager) || !p.HasRole(model.RoleRewarder) {
		t.Fatalf("roles not granted: %+v", p.Roles)
	}
	if p.HasRole(model.RoleAdmin) {
		t.Fatalf("unexpected admin grant")
	}
}

func TestAuthRejectsUnknownKey(t *testing.T) {
	r, _ := newAuthRouter(testTable())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderOperatorKey, "wrong")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthAnonymousWithoutKey(t *testing.T) {
	r, seen := newAuthRouter(testTable())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	p := *seen
	if p.ID != anonymousPrincipalID || len(p.Roles) != 0 {
		t.Fatalf("anonymous principal = %+v", p)
	}
}

func TestOperatorTableSkipsEmptyKeys(t *testing.T) {
	table := testTable()
	if _, ok := table.Lookup(""); ok {
		t.Fatalf("empty key must never resolve")
	}
}
