package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentbackend/appctx"
	"agentbackend/models"
	"agentbackend/services/users"
)

func TestWithAuthTestingMode(t *testing.T) {
	t.Setenv("TESTING_MODE", "true")

	t.Run("Resolves the same persisted test user on every request", func(t *testing.T) {
		mockUsers := &users.MockUsersService{}
		persisted := &models.User{
			ID:             "u_01JTESTUSER0000000000000000",
			AuthProvider:   "test",
			AuthProviderID: "test-user-123",
		}
		mockUsers.On("GetOrCreateUser", mock.Anything, "test", "test-user-123").
			Return(persisted, nil).Twice()

		middleware := NewClerkAuthMiddleware(mockUsers, "sk_test_dummy")

		var seen []string
		handler := middleware.WithAuth(func(w http.ResponseWriter, r *http.Request) {
			user, ok := appctx.GetUser(r.Context())
			require.True(t, ok)
			seen = append(seen, user.ID)
			w.WriteHeader(http.StatusOK)
		})

		for range 2 {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/agents", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		require.Len(t, seen, 2)
		assert.Equal(t, seen[0], seen[1])
		mockUsers.AssertExpectations(t)
	})

	t.Run("Fails closed when the test user cannot be resolved", func(t *testing.T) {
		mockUsers := &users.MockUsersService{}
		mockUsers.On("GetOrCreateUser", mock.Anything, "test", "test-user-123").
			Return(nil, assert.AnError)

		middleware := NewClerkAuthMiddleware(mockUsers, "sk_test_dummy")
		handler := middleware.WithAuth(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without a resolved user")
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/agents", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
