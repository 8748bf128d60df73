// Package delivery books couriers for placed orders through DoorDash Drive.
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
)

var (
	// ErrDuplicate means a delivery with the same external id already exists.
	ErrDuplicate = errors.New("delivery already exists")
	ErrRejected  = errors.New("delivery request rejected")
)

type Credentials struct {
	DeveloperID   string
	KeyID         string
	SigningSecret string
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	creds   Credentials
	secret  []byte
	now     func() time.Time
}

func NewClient(baseURL string, creds Credentials, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid doordash base url %q: %w", baseURL, err)
	}
	secret, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(creds.SigningSecret, "="))
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: u, http: httpClient, creds: creds, secret: secret, now: time.Now}, nil
}

// Request is the subset of the Drive create-delivery body we send.
type Request struct {
	ExternalDeliveryID       string `json:"external_delivery_id"`
	PickupAddress            string `json:"pickup_address"`
	PickupBusinessName       string `json:"pickup_business_name,omitempty"`
	PickupPhoneNumber        string `json:"pickup_phone_number,omitempty"`
	DropoffAddress           string `json:"dropoff_address"`
	DropoffPhoneNumber       string `json:"dropoff_phone_number"`
	DropoffContactGivenName  string `json:"dropoff_contact_given_name,omitempty"`
	DropoffContactFamilyName string `json:"dropoff_contact_family_name,omitempty"`
	DropoffInstructions      string `json:"dropoff_instructions,omitempty"`
	OrderValue               int64  `json:"order_value"`
}

type Delivery struct {
	ExternalDeliveryID string `json:"external_delivery_id"`
	DeliveryStatus     string `json:"delivery_status"`
	TrackingURL        string `json:"tracking_url"`
	Fee                int64  `json:"fee"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) CreateDelivery(ctx context.Context, req Request) (Delivery, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal delivery: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/drive/v2/deliveries", body)
	if err != nil {
		return Delivery{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Delivery{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return Delivery{ExternalDeliveryID: req.ExternalDeliveryID}, ErrDuplicate
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		return Delivery{}, fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, ae.Message)
	case resp.StatusCode >= 500:
		return Delivery{}, fmt.Errorf("doordash unavailable: %d", resp.StatusCode)
	}

	var d Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Delivery{}, fmt.Errorf("decode delivery: %w", err)
	}
	return d, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if cid := middleware.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(middleware.HeaderCorrelationID, cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doordash %s %s: %w", method, path, err)
	}
	return resp, nil
}

// token signs a short-lived DoorDash JWT.
func (c *Client) token() (string, error) {
	now := c.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "doordash",
		"iss": c.creds.DeveloperID,
		"kid": c.creds.KeyID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	t.Header["dd-ver"] = "DD-JWT-V1"

	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign doordash token: %w", err)
	}
	return signed, nil
}
