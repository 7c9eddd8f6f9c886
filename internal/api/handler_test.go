package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"tso-admin/internal/cache/mocks"
	"tso-admin/internal/database"
	db_mocks "tso-admin/internal/database/mocks"
	kafka_mocks "tso-admin/internal/kafka/mocks"
	"tso-admin/internal/model"
)

// helperTestOrder - универсальный тестовый заказ
var helperTestOrder = &model.Order{
	ID:            "1/25-FD",
	FirstName:     "Иван",
	LastName:      "Иванов",
	Destination:   "Сочи",
	DepartureDate: model.NewDate(2026, 9, 10),
	ArrivalDate:   model.NewDate(2026, 9, 17),
	Persons:       2,
	Price:         500.00,
	Total:         1000.00,
	Status:        model.StatusPending,
}

// envelope - конверт ответа для разбора в тестах
type envelope struct {
	Success     bool              `json:"success"`
	Data        json.RawMessage   `json:"data"`
	Error       string            `json:"error"`
	FieldErrors map[string]string `json:"field_errors"`
}

// setupHandlerAndMocks - хелпер для инициализации хендлера и моков
// (без публикации событий)
func setupHandlerAndMocks(t *testing.T) (*gomock.Controller, *OrderHandler, *mocks.MockCache, *db_mocks.MockStorage) {
	ctrl := gomock.NewController(t)
	mockCache := mocks.NewMockCache(ctrl)
	mockStorage := db_mocks.NewMockStorage(ctrl)
	handler := NewOrderHandler(mockStorage, mockCache, nil)
	return ctrl, handler, mockCache, mockStorage
}

// validInputBody - валидное тело запроса создания/обновления заказа
func validInputBody(t *testing.T, overrides map[string]interface{}) *bytes.Buffer {
	departure := time.Now().AddDate(0, 0, 10)
	arrival := departure.AddDate(0, 0, 7)

	body := map[string]interface{}{
		"first_name":     "Иван",
		"last_name":      "Иванов",
		"destination":    "Сочи",
		"departure_date": departure.Format("2006-01-02"),
		"arrival_date":   arrival.Format("2006-01-02"),
		"persons":        3,
		"price":          100.00,
		"status":         "Paid",
	}
	for k, v := range overrides {
		body[k] = v
	}

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("не удалось сериализовать тело запроса: %v", err)
	}
	return bytes.NewBuffer(raw)
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("невалидный JSON в ответе: %v", err)
	}
	return env
}

func TestOrderHandler_List_PassesQueryParams(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/orders?search=paid&sort=price&dir=DESC", nil)

	expectedQuery := database.ListQuery{Search: "paid", Sort: "price", Dir: "DESC"}
	mockStorage.EXPECT().ListOrders(gomock.Any(), expectedQuery).Return([]model.Order{*helperTestOrder}, nil)

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	var orders []model.Order
	assert.NoError(t, json.Unmarshal(env.Data, &orders))
	assert.Len(t, orders, 1)
	assert.Equal(t, helperTestOrder.ID, orders[0].ID)

	// Кириллица в ответе не экранируется
	assert.Contains(t, rr.Body.String(), `"Не оплачено"`)
}

func TestOrderHandler_List_EmptyResult(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/orders", nil)

	mockStorage.EXPECT().ListOrders(gomock.Any(), database.ListQuery{}).Return([]model.Order{}, nil)

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	// Пустая выборка — это "data": [], а не null
	assert.Contains(t, rr.Body.String(), `"data":[]`)
}

func TestOrderHandler_List_StorageError(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/orders", nil)

	mockStorage.EXPECT().ListOrders(gomock.Any(), gomock.Any()).Return(nil, errors.New("db: connection refused"))

	handler.List(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Не удалось загрузить заказы", env.Error)
	// Внутренние детали не утекают клиенту
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestOrderHandler_Create_Success(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orders", validInputBody(t, nil))

	var created model.Order
	mockStorage.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *model.Order) error {
			order.ID = "6/25-FD"
			created = *order
			return nil
		})
	mockCache.EXPECT().Set(gomock.Any(), "6/25-FD", gomock.Any())

	handler.Create(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	// total вычислен на сервере: 3 человека * 100.00
	assert.Equal(t, 300.00, created.Total)
	assert.Equal(t, model.StatusPaid, created.Status)

	var order model.Order
	assert.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "6/25-FD", order.ID)
}

func TestOrderHandler_Create_StatusSynonymNormalized(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orders", validInputBody(t, map[string]interface{}{
		"status": "не оплачено",
	}))

	mockStorage.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *model.Order) error {
			assert.Equal(t, model.StatusPending, order.Status)
			order.ID = "7/25-FD"
			return nil
		})
	mockCache.EXPECT().Set(gomock.Any(), "7/25-FD", gomock.Any())

	handler.Create(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOrderHandler_Create_ValidationError_NoInsert(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	departure := time.Now().AddDate(0, 0, 10)
	rr := httptest.NewRecorder()
	// Дата прилета совпадает с датой вылета — нарушение arrival > departure
	req := httptest.NewRequest("POST", "/api/orders", validInputBody(t, map[string]interface{}{
		"arrival_date": departure.Format("2006-01-02"),
	}))

	mockStorage.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Дата прилета должна быть позже даты вылета", env.FieldErrors["arrival_date"])
}

func TestOrderHandler_Create_MalformedBody(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orders", bytes.NewBufferString("{не json"))

	mockStorage.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Times(0)

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandler_Create_IDConflict(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orders", validInputBody(t, nil))

	mockStorage.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(database.ErrIDConflict)

	handler.Create(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
}

func TestOrderHandler_Update_Success(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/api/orders?id=1/25-FD", validInputBody(t, nil))

	mockStorage.EXPECT().UpdateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *model.Order) error {
			// id берется из запроса, а не из тела
			assert.Equal(t, "1/25-FD", order.ID)
			assert.Equal(t, 300.00, order.Total)
			return nil
		})
	mockCache.EXPECT().Set(gomock.Any(), "1/25-FD", gomock.Any())

	handler.Update(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
}

func TestOrderHandler_Update_NotFound(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/api/orders?id=999/25-FD", validInputBody(t, nil))

	mockStorage.EXPECT().UpdateOrder(gomock.Any(), gomock.Any()).Return(database.ErrOrderNotFound)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	handler.Update(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Заказ не найден", env.Error)
}

func TestOrderHandler_Update_NoID(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/api/orders", validInputBody(t, nil))

	mockStorage.EXPECT().UpdateOrder(gomock.Any(), gomock.Any()).Times(0)

	handler.Update(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandler_Delete_PublishesEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCache := mocks.NewMockCache(ctrl)
	mockStorage := db_mocks.NewMockStorage(ctrl)
	mockEvents := kafka_mocks.NewMockPublisher(ctrl)
	handler := NewOrderHandler(mockStorage, mockCache, mockEvents)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/api/orders?id=1/25-FD", nil)

	mockStorage.EXPECT().DeleteOrder(gomock.Any(), "1/25-FD").Return(nil)
	mockCache.EXPECT().Delete(gomock.Any(), "1/25-FD")
	mockEvents.EXPECT().PublishOrderEvent(gomock.Any(), "deleted", "1/25-FD", gomock.Nil())

	handler.Delete(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
}

func TestOrderHandler_Delete_SecondDeleteNotFound(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	mockStorage.EXPECT().DeleteOrder(gomock.Any(), "1/25-FD").Return(nil)
	mockCache.EXPECT().Delete(gomock.Any(), "1/25-FD")

	rr := httptest.NewRecorder()
	handler.Delete(rr, httptest.NewRequest("DELETE", "/api/orders?id=1/25-FD", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Повторное удаление того же id — 404, а не тихий успех
	mockStorage.EXPECT().DeleteOrder(gomock.Any(), "1/25-FD").Return(database.ErrOrderNotFound)

	rr = httptest.NewRecorder()
	handler.Delete(rr, httptest.NewRequest("DELETE", "/api/orders?id=1/25-FD", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandler_GetByID_CacheHit(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/order?id=1/25-FD", nil)

	mockCache.EXPECT().Get(gomock.Any(), "1/25-FD").Return(helperTestOrder, true)
	mockStorage.EXPECT().GetOrderByID(gomock.Any(), gomock.Any()).Times(0)

	handler.GetByID(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	var order model.Order
	assert.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, helperTestOrder.ID, order.ID)
}

func TestOrderHandler_GetByID_CacheMiss_DBHit(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/order?id=1/25-FD", nil)

	mockCache.EXPECT().Get(gomock.Any(), "1/25-FD").Return(nil, false)
	mockStorage.EXPECT().GetOrderByID(gomock.Any(), "1/25-FD").Return(helperTestOrder, nil)
	mockCache.EXPECT().Set(gomock.Any(), "1/25-FD", helperTestOrder)

	handler.GetByID(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOrderHandler_GetByID_NotFound(t *testing.T) {
	ctrl, handler, mockCache, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/order?id=999/25-FD", nil)

	mockCache.EXPECT().Get(gomock.Any(), "999/25-FD").Return(nil, false)
	mockStorage.EXPECT().GetOrderByID(gomock.Any(), "999/25-FD").Return(nil, database.ErrOrderNotFound)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	handler.GetByID(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandler_NextID(t *testing.T) {
	ctrl, handler, _, mockStorage := setupHandlerAndMocks(t)
	defer ctrl.Finish()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/orders/next-id", nil)

	mockStorage.EXPECT().NextOrderID(gomock.Any()).Return("6/25-FD", nil)

	handler.NextID(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	var data map[string]string
	assert.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "6/25-FD", data["id"])
}
