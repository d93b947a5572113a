package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, actor *shared.Actor) int {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/challans", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := New(nil)

	code := doRequest(t, m.RequireAny(shared.PermChallanRaise), &shared.Actor{EmployeeID: 7, Role: shared.RoleSales})
	require.Equal(t, http.StatusOK, code)

	code = doRequest(t, m.RequireAny(shared.PermChallanForward), &shared.Actor{EmployeeID: 7, Role: shared.RoleSales})
	require.Equal(t, http.StatusForbidden, code)

	code = doRequest(t, m.RequireAny(shared.PermChallanForward), nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireAll(t *testing.T) {
	m := New(nil)

	code := doRequest(t, m.RequireAll(shared.PermChallanAllocate, shared.PermChallanComplete), &shared.Actor{EmployeeID: 9, Role: shared.RoleWarehouse})
	require.Equal(t, http.StatusOK, code)

	code = doRequest(t, m.RequireAll(shared.PermChallanAllocate, shared.PermChallanForward), &shared.Actor{EmployeeID: 9, Role: shared.RoleWarehouse})
	require.Equal(t, http.StatusForbidden, code)

	code = doRequest(t, m.RequireAll(shared.PermStockCorrect), &shared.Actor{EmployeeID: 3, Role: "unknown"})
	require.Equal(t, http.StatusForbidden, code)
}
