package storageclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is the order side's synchronous proxy to the storage service.
// Reserve and Release are identified by a caller-minted token, so the storage
// side can keep releases bounded and a retried reserve extends rather than
// duplicates the reservation.
type Client interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	HasStock(ctx context.Context, productID int64, amount int) (bool, error)
	Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) error
	Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error
}

// Product is the storage service's view of a product.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Amount      int             `json:"amount"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

const requestTimeout = 5 * time.Second

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (c *HTTPClient) GetProduct(ctx context.Context, productID int64) (Product, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/products/%d", productID), nil)
	if err != nil {
		return Product{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var p Product
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return Product{}, fmt.Errorf("decode product: %w", err)
		}
		return p, nil
	case http.StatusNotFound:
		return Product{}, ProductNotFoundError{ProductID: productID}
	default:
		return Product{}, unexpectedStatus(resp)
	}
}

func (c *HTTPClient) HasStock(ctx context.Context, productID int64, amount int) (bool, error) {
	q := url.Values{"amount": {strconv.Itoa(amount)}}
	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/products/%d/stock", productID), q)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var inStock bool
		if err := json.NewDecoder(resp.Body).Decode(&inStock); err != nil {
			return false, fmt.Errorf("decode stock response: %w", err)
		}
		return inStock, nil
	case http.StatusNotFound:
		return false, ProductNotFoundError{ProductID: productID}
	default:
		return false, unexpectedStatus(resp)
	}
}

func (c *HTTPClient) Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	q := url.Values{
		"amount":      {strconv.Itoa(amount)},
		"reservation": {token.String()},
	}
	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/products/%d/order", productID), q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ProductNotFoundError{ProductID: productID}
	case http.StatusBadRequest:
		return decodeStockError(resp, productID, amount)
	default:
		return unexpectedStatus(resp)
	}
}

func (c *HTTPClient) Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	q := url.Values{
		"amount":      {strconv.Itoa(amount)},
		"reservation": {token.String()},
	}
	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/products/%d/order-cancel", productID), q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ReservationNotFoundError{ProductID: productID, ReservationID: token}
	default:
		return unexpectedStatus(resp)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, APIError{Message: err.Error()}
	}
	return resp, nil
}

// stockErrorBody is the storage service's 400 payload for reserve failures.
type stockErrorBody struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

func decodeStockError(resp *http.Response, productID int64, requested int) error {
	// both branches below fall back to APIError when the body is opaque
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return APIError{Status: resp.StatusCode, Message: err.Error()}
	}

	var payload stockErrorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return APIError{Status: resp.StatusCode, Message: string(body)}
	}

	if payload.Available != nil {
		req := requested
		if payload.Requested != nil {
			req = *payload.Requested
		}
		return InsufficientStockError{
			ProductID: productID,
			Available: *payload.Available,
			Requested: req,
		}
	}
	return InvalidAmountError{Amount: requested}
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return APIError{Status: resp.StatusCode, Message: string(body)}
}
