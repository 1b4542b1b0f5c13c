package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/code-review-api/feedback"
	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/review"
	"github.com/gosom/code-review-api/web/auth"
	"github.com/gosom/code-review-api/web/handlers"
	"github.com/gosom/code-review-api/web/memory"
	"github.com/gosom/code-review-api/web/services"
)

type fixture struct {
	group *handlers.HandlerGroup
	store *memory.Store
	user  models.User
}

func newFixture(t *testing.T, credits int) *fixture {
	t.Helper()

	store := memory.New()

	user := models.User{
		ID:      "user_1",
		Email:   "a@example.com",
		Plan:    models.PlanFree,
		Credits: credits,
	}
	require.NoError(t, store.Users().Create(context.Background(), &user))

	svc := review.NewService(store.Users(), store.Reviews(), feedback.NewTemplate(), nil)

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Reviews:   svc,
		CreditSvc: services.NewCreditService(store.Users()),
	})

	return &fixture{group: group, store: store, user: user}
}

// asUser injects the identity the auth middleware would have set.
func asUser(r *http.Request, user models.User) *http.Request {
	ctx := context.WithValue(r.Context(), auth.UserIDKey, user.ID)
	ctx = context.WithValue(ctx, auth.UserEmailKey, user.Email)

	return r.WithContext(ctx)
}

func submitBody(t *testing.T) *bytes.Buffer {
	t.Helper()

	body, err := json.Marshal(models.ReviewRequest{
		Title:    "fn",
		Language: "python",
		Code:     "def f(): pass",
	})
	require.NoError(t, err)

	return bytes.NewBuffer(body)
}

func TestSubmitReview(t *testing.T) {
	t.Run("success returns feedback and review id", func(t *testing.T) {
		f := newFixture(t, 3)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", submitBody(t)), f.user)
		rec := httptest.NewRecorder()

		f.group.API.SubmitReview(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.ReviewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Feedback, "PYTHON")
		assert.NotEmpty(t, resp.ReviewID)

		after, err := f.store.Users().GetByEmail(req.Context(), f.user.Email)
		require.NoError(t, err)
		assert.Equal(t, 2, after.Credits)
	})

	t.Run("insufficient credits returns 403", func(t *testing.T) {
		f := newFixture(t, 0)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", submitBody(t)), f.user)
		rec := httptest.NewRecorder()

		f.group.API.SubmitReview(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)

		var apiErr models.APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "Insufficient credits", apiErr.Error)

		reviews, err := f.store.Reviews().ListByUser(req.Context(), f.user.ID)
		require.NoError(t, err)
		assert.Empty(t, reviews)

		after, err := f.store.Users().GetByEmail(req.Context(), f.user.Email)
		require.NoError(t, err)
		assert.Equal(t, 0, after.Credits)
	})

	t.Run("unauthenticated returns 401", func(t *testing.T) {
		f := newFixture(t, 1)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/review", submitBody(t))
		rec := httptest.NewRecorder()

		f.group.API.SubmitReview(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var apiErr models.APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "Unauthorized", apiErr.Error)
	})

	t.Run("missing fields return 400", func(t *testing.T) {
		f := newFixture(t, 1)

		body := bytes.NewBufferString(`{"title":"fn","language":"","code":"x"}`)
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", body), f.user)
		rec := httptest.NewRecorder()

		f.group.API.SubmitReview(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		f := newFixture(t, 1)

		body := bytes.NewBufferString(`{not json`)
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", body), f.user)
		rec := httptest.NewRecorder()

		f.group.API.SubmitReview(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListReviews(t *testing.T) {
	f := newFixture(t, 3)

	for i := 0; i < 2; i++ {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", submitBody(t)), f.user)
		rec := httptest.NewRecorder()
		f.group.API.SubmitReview(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil), f.user)
	rec := httptest.NewRecorder()

	f.group.API.ListReviews(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var items []models.ReviewSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	for _, item := range items {
		assert.Equal(t, models.ReviewStatusCompleted, item.Status)
		assert.Equal(t, "python", item.Language)
	}
}

func TestGetReview(t *testing.T) {
	f := newFixture(t, 1)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/review", submitBody(t)), f.user)
	rec := httptest.NewRecorder()
	f.group.API.SubmitReview(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created models.ReviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/reviews/{id}", f.group.API.GetReview).Methods(http.MethodGet)

	getReq := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/reviews/"+created.ReviewID, nil), f.user)
	getRec := httptest.NewRecorder()

	router.ServeHTTP(getRec, getReq)

	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched models.Review
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ReviewID, fetched.ID)
	assert.Equal(t, created.Feedback, fetched.Feedback)

	// unknown id
	missReq := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/reviews/nope", nil), f.user)
	missRec := httptest.NewRecorder()

	router.ServeHTTP(missRec, missReq)
	require.Equal(t, http.StatusNotFound, missRec.Code)
}

func TestGetCreditBalance(t *testing.T) {
	f := newFixture(t, 7)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil), f.user)
	rec := httptest.NewRecorder()

	f.group.API.GetCreditBalance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CreditBalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Credits)
	assert.Equal(t, models.PlanFree, resp.Plan)
}

func TestGetCreditBalanceUnknownUser(t *testing.T) {
	f := newFixture(t, 1)

	ghost := models.User{ID: "user_gone", Email: "gone@example.com"}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil), ghost)
	rec := httptest.NewRecorder()

	f.group.API.GetCreditBalance(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t, 2)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), f.user)
	rec := httptest.NewRecorder()

	f.group.API.GetProfile(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, f.user.Email, resp.User.Email)
	assert.Equal(t, 0, resp.TotalReviews)
}
