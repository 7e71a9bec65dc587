package alpineiq

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/pkg/config"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

const apiKeyHeader = "X-APIKEY"

// Contact is a loyalty member as AlpineIQ stores it.
type Contact struct {
	ExternalID string `json:"externalID"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Mobile     string `json:"mobilePhone,omitempty"`
	Tier       string `json:"loyaltyTier,omitempty"`
	Points     int64  `json:"loyaltyPoints"`
}

type PurchaseLine struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Purchase records one completed register sale against a contact.
type Purchase struct {
	ContactExternalID string          `json:"contactExternalID"`
	InvoiceID         string          `json:"invoiceID"`
	StoreID           string          `json:"storeID"`
	Total             decimal.Decimal `json:"total"`
	PointsEarned      int64           `json:"pointsEarned"`
	PurchasedAt       time.Time       `json:"purchaseDate"`
	Lines             []PurchaseLine  `json:"lines"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the AlpineIQ REST API.
type Client struct {
	http *resty.Client
	uid  string
	logg *logger.Logger
}

func NewClient(cfg config.AlpineIQConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("alpineiq api key and uid are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("alpineiq base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader(apiKeyHeader, cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, uid: cfg.UID, logg: logg}, nil
}

// UpsertContact creates or updates the loyalty member keyed by ExternalID.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) error {
	if strings.TrimSpace(contact.ExternalID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "contact external id is required")
	}
	return c.post(ctx, "/contact/"+c.uid, contact)
}

// RecordPurchase posts a completed sale so AlpineIQ can attribute it.
func (c *Client) RecordPurchase(ctx context.Context, purchase Purchase) error {
	if strings.TrimSpace(purchase.InvoiceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	return c.post(ctx, "/purchase/"+c.uid, purchase)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "alpineiq request failed")
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("alpineiq %s returned %d", path, status)).
			WithDetails(map[string]any{"status": status, "error": out.Error})
	case status >= http.StatusBadRequest:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("alpineiq rejected %s: %d", path, status)).
			WithDetails(map[string]any{"status": status, "error": out.Error})
	}

	if c.logg != nil {
		c.logg.Debug(c.logg.WithFields(ctx, map[string]any{"path": path, "status": status}), "alpineiq request ok")
	}
	return nil
}

// Retryable reports whether err is worth another delivery attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
