package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aslakhin/notify-service/internal/config"
	mocks "github.com/aslakhin/notify-service/internal/mocks/api/handlers/notification"
	"github.com/aslakhin/notify-service/internal/model"
	"github.com/aslakhin/notify-service/internal/repository/notification"
	svc "github.com/aslakhin/notify-service/internal/service/notification"
)

func setupHandler(t *testing.T) (*Handler, *mocks.MocknotificationService) {
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	service := mocks.NewMocknotificationService(ctrl)
	cfg := &config.Config{Retry: retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}}

	return NewHandler(service, validator.New(), cfg), service
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	return c, w
}

func TestHandler_Create(t *testing.T) {
	h, service := setupHandler(t)

	body, _ := json.Marshal(CreateRequest{
		UserID:  "u1",
		Type:    model.TypeEmail,
		Title:   "Hi",
		Message: "there",
	})

	created := model.Notification{
		ID:     uuid.New(),
		UserID: "u1",
		Type:   model.TypeEmail,
		Status: model.StatusPending,
	}

	service.EXPECT().
		Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ retry.Strategy, in svc.CreateInput) (model.Notification, error) {
			assert.Equal(t, "u1", in.UserID)
			assert.Equal(t, model.TypeEmail, in.Type)
			return created, nil
		})

	c, w := testContext(t, http.MethodPost, "/api/v1/notifications", body)
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), created.ID.String())
}

func TestHandler_Create_ValidationError(t *testing.T) {
	h, _ := setupHandler(t)

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"missing user_id", CreateRequest{Title: "Hi", Message: "there"}},
		{"missing title", CreateRequest{UserID: "u1", Message: "there"}},
		{"bad type", CreateRequest{UserID: "u1", Title: "Hi", Message: "there", Type: "fax"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.req)
			c, w := testContext(t, http.MethodPost, "/api/v1/notifications", body)
			h.Create(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandler_Create_MalformedBody(t *testing.T) {
	h, _ := setupHandler(t)

	c, w := testContext(t, http.MethodPost, "/api/v1/notifications", []byte("{not json"))
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Get(t *testing.T) {
	h, service := setupHandler(t)
	id := uuid.New()

	service.EXPECT().
		Get(gomock.Any(), id).
		Return(model.Notification{ID: id, Status: model.StatusSent}, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/notifications/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.String())
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, service := setupHandler(t)
	id := uuid.New()

	service.EXPECT().
		Get(gomock.Any(), id).
		Return(model.Notification{}, notification.ErrNotificationNotFound)

	c, w := testContext(t, http.MethodGet, "/api/v1/notifications/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _ := setupHandler(t)

	c, w := testContext(t, http.MethodGet, "/api/v1/notifications/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetStatus(t *testing.T) {
	h, service := setupHandler(t)
	id := uuid.New()

	service.EXPECT().
		GetStatus(gomock.Any(), gomock.Any(), id).
		Return(model.StatusSent, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/notifications/"+id.String()+"/status", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.GetStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.StatusSent)
}

func TestHandler_ListByUser(t *testing.T) {
	h, service := setupHandler(t)

	service.EXPECT().
		ListByUser(gomock.Any(), "u1", 5, 10, model.StatusSent).
		Return([]model.Notification{{ID: uuid.New(), UserID: "u1"}}, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/users/u1/notifications?limit=5&skip=10&status=sent", nil)
	c.Params = gin.Params{{Key: "user_id", Value: "u1"}}
	h.ListByUser(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_ListByUser_Defaults(t *testing.T) {
	h, service := setupHandler(t)

	service.EXPECT().
		ListByUser(gomock.Any(), "u1", 10, 0, "").
		Return(nil, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/users/u1/notifications", nil)
	c.Params = gin.Params{{Key: "user_id", Value: "u1"}}
	h.ListByUser(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "[]", "a nil result must render as an empty list")
}

func TestHandler_ListByUser_InvalidStatus(t *testing.T) {
	h, service := setupHandler(t)

	service.EXPECT().
		ListByUser(gomock.Any(), "u1", 10, 0, "archived").
		Return(nil, fmt.Errorf("%w: archived", svc.ErrInvalidStatus))

	c, w := testContext(t, http.MethodGet, "/api/v1/users/u1/notifications?status=archived", nil)
	c.Params = gin.Params{{Key: "user_id", Value: "u1"}}
	h.ListByUser(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, service := setupHandler(t)
	id := uuid.New()

	body, _ := json.Marshal(UpdateStatusRequest{Status: model.StatusFailed})

	service.EXPECT().
		UpdateStatus(gomock.Any(), gomock.Any(), id, model.StatusFailed).
		Return(model.Notification{ID: id, Status: model.StatusFailed}, nil)

	c, w := testContext(t, http.MethodPatch, "/api/v1/notifications/"+id.String()+"/status", body)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.StatusFailed)
}

func TestHandler_UpdateStatus_NotFound(t *testing.T) {
	h, service := setupHandler(t)
	id := uuid.New()

	body, _ := json.Marshal(UpdateStatusRequest{Status: model.StatusSent})

	service.EXPECT().
		UpdateStatus(gomock.Any(), gomock.Any(), id, model.StatusSent).
		Return(model.Notification{}, notification.ErrNotificationNotFound)

	c, w := testContext(t, http.MethodPatch, "/api/v1/notifications/"+id.String()+"/status", body)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_UpdateStatus_RejectsUnknownStatus(t *testing.T) {
	h, _ := setupHandler(t)
	id := uuid.New()

	body := []byte(`{"status":"archived"}`)

	c, w := testContext(t, http.MethodPatch, "/api/v1/notifications/"+id.String()+"/status", body)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Health(t *testing.T) {
	h, service := setupHandler(t)

	service.EXPECT().HealthCheck(gomock.Any()).Return(svc.Health{
		Status:   "healthy",
		MongoDB:  svc.DependencyHealth{Status: "healthy"},
		RabbitMQ: svc.DependencyHealth{Status: "healthy"},
	})

	c, w := testContext(t, http.MethodGet, "/api/v1/health", nil)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Health_Unavailable(t *testing.T) {
	h, service := setupHandler(t)

	service.EXPECT().HealthCheck(gomock.Any()).Return(svc.Health{
		Status:   "unhealthy",
		MongoDB:  svc.DependencyHealth{Status: "healthy"},
		RabbitMQ: svc.DependencyHealth{Status: "unhealthy", Message: "not connected"},
	})

	c, w := testContext(t, http.MethodGet, "/api/v1/health", nil)
	h.Health(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
