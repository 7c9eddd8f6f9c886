package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"tso-admin/internal/cache"
	"tso-admin/internal/database"
	"tso-admin/internal/kafka"
	"tso-admin/internal/metrics"
	"tso-admin/internal/model"
	"tso-admin/internal/validator"
)

// OrderHandler обрабатывает HTTP-запросы админ-панели заказов.
type OrderHandler struct {
	storage database.Storage
	cache   cache.Cache
	events  kafka.Publisher // может быть nil, если публикация событий отключена
}

// NewOrderHandler создает новый экземпляр OrderHandler.
func NewOrderHandler(storage database.Storage, cache cache.Cache, events kafka.Publisher) *OrderHandler {
	return &OrderHandler{storage: storage, cache: cache, events: events}
}

// response — единый конверт ответа API.
type response struct {
	Success     bool              `json:"success"`
	Data        interface{}       `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// List отдает заказы с учетом поиска и сортировки.
// Очистку sort/dir выполняет query builder, search уходит в плейсхолдер.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	handlerName := "List"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	q := database.ListQuery{
		Search: r.URL.Query().Get("search"),
		Sort:   r.URL.Query().Get("sort"),
		Dir:    r.URL.Query().Get("dir"),
	}

	orders, err := h.storage.ListOrders(r.Context(), q)
	if err != nil {
		log.Printf("Ошибка выборки заказов: %v", err)
		respondError(w, http.StatusInternalServerError, "Не удалось загрузить заказы", handlerName)
		return
	}

	respondData(w, http.StatusOK, orders, handlerName)
}

// GetByID ищет заказ сначала в кэше, затем в БД. Id заказа содержит "/"
// ("12/25-FD"), поэтому передается query-параметром, а не сегментом пути.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	handlerName := "GetByID"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Не указан id заказа", handlerName)
		return
	}

	if order, found := h.cache.Get(r.Context(), id); found {
		metrics.CacheHits.Inc()
		respondData(w, http.StatusOK, order, handlerName)
		return
	}
	metrics.CacheMisses.Inc()

	order, err := h.storage.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "Заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка получения заказа %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Не удалось получить заказ", handlerName)
		return
	}

	h.cache.Set(r.Context(), id, order)
	respondData(w, http.StatusOK, order, handlerName)
}

// NextID отдает предварительный номер для следующего заказа.
// Номер не резервируется: окончательный присваивается при создании.
func (h *OrderHandler) NextID(w http.ResponseWriter, r *http.Request) {
	handlerName := "NextID"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	id, err := h.storage.NextOrderID(r.Context())
	if err != nil {
		log.Printf("Ошибка вычисления номера заказа: %v", err)
		respondError(w, http.StatusInternalServerError, "Не удалось вычислить номер заказа", handlerName)
		return
	}

	respondData(w, http.StatusOK, map[string]string{"id": id}, handlerName)
}

// Create валидирует кандидат заказа, присваивает номер и сохраняет его.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	handlerName := "Create"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	in, ok := h.decodeAndValidate(w, r, handlerName)
	if !ok {
		return
	}

	// После валидации статус гарантированно распознается.
	status, _ := model.ParseStatus(in.Status)
	order := in.ToOrder(status)

	if err := h.storage.CreateOrder(r.Context(), &order); err != nil {
		if errors.Is(err, database.ErrIDConflict) {
			respondError(w, http.StatusConflict, "Не удалось присвоить номер заказа, повторите попытку", handlerName)
			return
		}
		log.Printf("Ошибка создания заказа: %v", err)
		respondError(w, http.StatusInternalServerError, "Не удалось сохранить заказ", handlerName)
		return
	}

	metrics.OrdersMutated.WithLabelValues("created").Inc()
	h.cache.Set(r.Context(), order.ID, &order)
	h.publish(r.Context(), "created", order.ID, &order)

	respondData(w, http.StatusOK, order, handlerName)
}

// Update перезаписывает существующий заказ. Id берется только из
// query-параметра, поле id в теле игнорируется и не меняется никогда.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	handlerName := "Update"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Не указан id заказа", handlerName)
		return
	}

	in, ok := h.decodeAndValidate(w, r, handlerName)
	if !ok {
		return
	}

	status, _ := model.ParseStatus(in.Status)
	order := in.ToOrder(status)
	order.ID = id

	if err := h.storage.UpdateOrder(r.Context(), &order); err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "Заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка обновления заказа %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Не удалось обновить заказ", handlerName)
		return
	}

	metrics.OrdersMutated.WithLabelValues("updated").Inc()
	h.cache.Set(r.Context(), order.ID, &order)
	h.publish(r.Context(), "updated", order.ID, &order)

	respondData(w, http.StatusOK, order, handlerName)
}

// Delete удаляет заказ. Повторное удаление того же id отвечает 404:
// тихий успех прятал бы ошибки клиента.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	handlerName := "Delete"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Не указан id заказа", handlerName)
		return
	}

	if err := h.storage.DeleteOrder(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "Заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка удаления заказа %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Не удалось удалить заказ", handlerName)
		return
	}

	metrics.OrdersMutated.WithLabelValues("deleted").Inc()
	h.cache.Delete(r.Context(), id)
	h.publish(r.Context(), "deleted", id, nil)

	respondJSON(w, http.StatusOK, response{Success: true}, handlerName)
}

// decodeAndValidate читает тело запроса и проверяет кандидат заказа.
// При ошибке сам пишет ответ и возвращает ok=false.
func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, handlerName string) (*model.OrderInput, bool) {
	var in model.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Некорректное тело запроса", handlerName)
		return nil, false
	}

	if fieldErrs := validator.ValidateOrderInput(&in); fieldErrs != nil {
		respondJSON(w, http.StatusBadRequest, response{
			Success:     false,
			Error:       "Ошибка валидации",
			FieldErrors: fieldErrs,
		}, handlerName)
		return nil, false
	}

	return &in, true
}

// publish отправляет событие изменения заказа, если продюсер настроен.
func (h *OrderHandler) publish(ctx context.Context, action, orderID string, order *model.Order) {
	if h.events == nil {
		return
	}
	h.events.PublishOrderEvent(ctx, action, orderID, order)
}

// respondJSON пишет конверт ответа. Кириллица в статусах и именах
// отдается как есть, без \u-экранирования.
func respondJSON(w http.ResponseWriter, code int, resp response, handlerName string) {
	metrics.HttpRequestsTotal.WithLabelValues(handlerName, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(resp); err != nil {
		log.Printf("Ошибка записи ответа: %v", err)
	}
}

func respondData(w http.ResponseWriter, code int, data interface{}, handlerName string) {
	respondJSON(w, code, response{Success: true, Data: data}, handlerName)
}

// respondError отвечает конвертом с сообщением для пользователя.
// Внутренние детали ошибок остаются в логах и клиенту не отдаются.
func respondError(w http.ResponseWriter, code int, message string, handlerName string) {
	respondJSON(w, code, response{Success: false, Error: message}, handlerName)
}
