package orderhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/Stepanin42/market-task/internal/coordinator"
	"github.com/Stepanin42/market-task/internal/order"
	"github.com/Stepanin42/market-task/internal/storageclient"
)

type Handler struct {
	coord *coordinator.Coordinator
}

func NewHandler(coord *coordinator.Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type lineDTO struct {
	ProductID int64 `json:"productId"`
	Amount    int   `json:"amount"`
}

type createOrderRequest struct {
	CustomerPhone   string    `json:"customerPhone"`
	DeliveryAddress string    `json:"deliveryAddress"`
	OrderProducts   []lineDTO `json:"orderProducts"`
}

type updateOrderRequest struct {
	CustomerPhone   string    `json:"customerPhone"`
	DeliveryAddress string    `json:"deliveryAddress"`
	Status          string    `json:"status"`
	OrderProducts   []lineDTO `json:"orderProducts"`
}

type updateInfoRequest struct {
	CustomerPhone   string `json:"customerPhone"`
	DeliveryAddress string `json:"deliveryAddress"`
	Status          string `json:"status"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.coord.ListOrders(r.Context())
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.coord.GetOrder(r.Context(), id)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) FindByCustomerPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "missing phone")
		return
	}

	orders, err := h.coord.FindByCustomerPhone(r.Context(), phone)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) FindByDeliveryAddress(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	orders, err := h.coord.FindByDeliveryAddress(r.Context(), address)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) FindByProductID(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid productId")
		return
	}

	orders, err := h.coord.FindByProductID(r.Context(), productID)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) FindRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.coord.FindRecent(r.Context(), limit)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.OrderProducts) == 0 {
		writeError(w, http.StatusBadRequest, "order needs at least one product")
		return
	}

	o, err := h.coord.CreateOrder(r.Context(), coordinator.Info{
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
	}, toRequestedLines(req.OrderProducts))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.coord.UpdateOrder(r.Context(), id, coordinator.Info{
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Status:          status,
	}, toRequestedLines(req.OrderProducts))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateOrderInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.coord.UpdateOrderInfo(r.Context(), id, coordinator.Info{
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Status:          status,
	})
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req lineDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.coord.AddProduct(r.Context(), id, req.ProductID, req.Amount)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(r.URL.Query().Get("idProduct"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid idProduct")
		return
	}

	o, err := h.coord.RemoveProduct(r.Context(), id, productID)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) ChangeAmount(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(r.URL.Query().Get("idProduct"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid idProduct")
		return
	}
	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	o, err := h.coord.ChangeAmount(r.Context(), id, productID, amount)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	if err := h.coord.DeleteOrder(r.Context(), id); err != nil {
		writeOrderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRequestedLines(dtos []lineDTO) []coordinator.RequestedLine {
	return lo.Map(dtos, func(d lineDTO, _ int) coordinator.RequestedLine {
		return coordinator.RequestedLine{ProductID: d.ProductID, Amount: d.Amount}
	})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func writeOrderError(w http.ResponseWriter, err error) {
	var (
		orderNotFound   order.NotFoundError
		lineNotFound    order.LineNotFoundError
		lineExists      order.LineExistsError
		productNotFound storageclient.ProductNotFoundError
		resvNotFound    storageclient.ReservationNotFoundError
		insufficient    storageclient.InsufficientStockError
		invalidAmount   storageclient.InvalidAmountError
		apiErr          storageclient.APIError
	)
	switch {
	case errors.As(err, &orderNotFound),
		errors.As(err, &lineNotFound),
		errors.As(err, &productNotFound),
		errors.As(err, &resvNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &lineExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "insufficient stock",
			"productId": insufficient.ProductID,
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.As(err, &invalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "storage service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
