package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const orgDevicesPath = "/orgDevices"

// Options parameterise the inventory API client.
type Options struct {
	BaseURL          string
	TokenURL         string
	Audience         string
	ClientID         string
	KeyID            string
	PrivateKeyPath   string
	PrivateKeyBase64 string
	Scope            string
	PageLimit        int
	Timeout          time.Duration
	UserAgent        string
}

// Client fetches organisation devices from the business API using the
// OAuth client credentials flow with an ES256 client assertion.
type Client struct {
	opts     Options
	logger   zerolog.Logger
	client   *http.Client
	baseURL  string
	tokenURL string
	now      func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient constructs an inventory client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-business.apple.com/v1"
	}
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = "https://account.apple.com/auth/oauth2/token"
	}
	if opts.Audience == "" {
		opts.Audience = "https://account.apple.com/auth/oauth2/v2/token"
	}
	if opts.Scope == "" {
		opts.Scope = "business.api"
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 100
	}

	return &Client{
		opts:     opts,
		logger:   logger.With().Str("component", "inventory_client").Logger(),
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		tokenURL: tokenURL,
		now:      time.Now,
	}
}

type orgDevice struct {
	ID         string `json:"id"`
	Attributes struct {
		SerialNumber       string     `json:"serialNumber"`
		ProductFamily      string     `json:"productFamily"`
		DeviceModel        string     `json:"deviceModel"`
		ProductType        string     `json:"productType"`
		DeviceCapacity     string     `json:"deviceCapacity"`
		Color              string     `json:"color"`
		Status             string     `json:"status"`
		OrderDateTime      *time.Time `json:"orderDateTime"`
		AddedToOrgDateTime *time.Time `json:"addedToOrgDateTime"`
		UpdatedDateTime    *time.Time `json:"updatedDateTime"`
	} `json:"attributes"`
}

type orgDevicesResponse struct {
	Data []orgDevice `json:"data"`
	Meta struct {
		Paging struct {
			Limit      int    `json:"limit"`
			NextCursor string `json:"nextCursor"`
		} `json:"paging"`
	} `json:"meta"`
}

// FetchDevices retrieves one page of organisation devices. Pass the
// cursor from the previous page, or empty for the first.
func (c *Client) FetchDevices(ctx context.Context, cursor string) (Page, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Page{}, err
	}

	endpoint := c.baseURL + orgDevicesPath
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.opts.PageLimit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fleetpricer/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Page{}, parseHTTPError("device listing", resp.StatusCode, payload)
	}

	var listing orgDevicesResponse
	if err := json.Unmarshal(payload, &listing); err != nil {
		return Page{}, fmt.Errorf("decode device listing: %w", err)
	}

	page := Page{
		Devices:    make([]Device, 0, len(listing.Data)),
		NextCursor: listing.Meta.Paging.NextCursor,
	}
	for _, item := range listing.Data {
		attrs := item.Attributes
		serial := attrs.SerialNumber
		if serial == "" {
			serial = item.ID
		}
		if serial == "" {
			continue
		}
		page.Devices = append(page.Devices, Device{
			Serial:        serial,
			ProductFamily: attrs.ProductFamily,
			DeviceModel:   attrs.DeviceModel,
			ProductType:   attrs.ProductType,
			Storage:       attrs.DeviceCapacity,
			Color:         attrs.Color,
			Status:        attrs.Status,
			PurchaseDate:  attrs.OrderDateTime,
			AddedAt:       attrs.AddedToOrgDateTime,
			UpdatedAt:     attrs.UpdatedDateTime,
		})
	}

	c.logger.Debug().
		Int("devices", len(page.Devices)).
		Bool("has_next", page.NextCursor != "").
		Msg("fetched device page")
	return page, nil
}

type errorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseHTTPError(op string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Detail != "" {
			return fmt.Errorf("%s failed (%d): %s", op, status, apiErr.Errors[0].Detail)
		}
		if apiErr.ErrorDescription != "" {
			return fmt.Errorf("%s failed (%d): %s", op, status, apiErr.ErrorDescription)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("%s failed (%d): %s", op, status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s failed (%d): %s", op, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s failed (%d)", op, status)
}

var _ DeviceSource = (*Client)(nil)
