package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/auth"
)

func serve(userID, role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireUser(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serve("u", RoleAdmin, RoleSupervisor); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotOperate(t *testing.T) {
	if code := serve("u", RoleViewer, Operators...); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve("u", RoleViewer, Readers...); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AgentCannotConfigure(t *testing.T) {
	if code := serve("u", RoleAgent, RoleSupervisor); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireUser(t *testing.T) {
	if code := serve("", RoleSupervisor, RoleSupervisor); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := serve("u", "", RoleSupervisor); code != 401 {
		t.Fatalf("expected 401 without role, got %d", code)
	}
}
