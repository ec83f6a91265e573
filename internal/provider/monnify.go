// internal/provider/monnify.go
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	monnifyName     = "monnify"
	monnifyTokenKey = "vaspay:monnify:access_token"
)

type MonnifyConfig struct {
	APIKey       string
	SecretKey    string
	ContractCode string
	BaseURL      string
	Timeout      time.Duration
	RequeryDelay time.Duration
}

// Monnify is the primary bills adapter: login for a bearer token (cached in
// redis, the token is valid for about an hour), resolve the biller and
// product, validate the customer, vend, and requery once when the vend
// comes back IN_PROGRESS.
type Monnify struct {
	cfg    MonnifyConfig
	http   *http.Client
	cache  *redis.Client
	logger *zap.Logger
}

func NewMonnify(cfg MonnifyConfig, cache *redis.Client, logger *zap.Logger) *Monnify {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.RequeryDelay < 0 {
		cfg.RequeryDelay = 0
	}
	return &Monnify{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger,
	}
}

func (m *Monnify) Name() string { return monnifyName }

func (m *Monnify) Purchase(ctx context.Context, req Request) (*Result, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	product, err := m.resolveProduct(ctx, token, req)
	if err != nil {
		return nil, err
	}

	validation, err := m.validateCustomer(ctx, token, product.Code, req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if req.Kind == KindData && product.Price > 0 {
		amount = product.Price
	}

	vend := map[string]interface{}{
		"productCode": product.Code,
		"customerId":  req.PhoneNumber,
		"amount":      amount,
		"reference":   req.Reference,
	}
	if req.Kind == KindBill {
		vend["customerId"] = req.CustomerID
	}
	if validation.RequireValidationRef && validation.ValidationReference != "" {
		vend["validationReference"] = validation.ValidationReference
	}

	var resp monnifyEnvelope
	if err := m.call(ctx, http.MethodPost, "vend", token, vend, &resp); err != nil {
		return nil, err
	}

	result := resp.ResponseBody
	switch result.VendStatus {
	case "SUCCESS":
		return m.toResult(req, result), nil
	case "IN_PROGRESS":
		// One requery after a fixed delay; anything still unresolved is a
		// failure so the fallback provider gets its turn.
		m.logger.Info("vend in progress, requerying",
			zap.String("reference", req.Reference),
			zap.Duration("delay", m.cfg.RequeryDelay))

		select {
		case <-ctx.Done():
			return nil, newError(monnifyName, "CTX", "context cancelled during requery wait")
		case <-time.After(m.cfg.RequeryDelay):
		}

		var requery monnifyEnvelope
		endpoint := "requery?reference=" + url.QueryEscape(req.Reference)
		if err := m.call(ctx, http.MethodGet, endpoint, token, nil, &requery); err != nil {
			return nil, err
		}
		if requery.ResponseBody.VendStatus == "SUCCESS" {
			return m.toResult(req, requery.ResponseBody), nil
		}
		return nil, newError(monnifyName, requery.ResponseBody.VendStatus, "vend unresolved after requery: %s", requery.ResponseBody.Description)
	default:
		return nil, newError(monnifyName, result.VendStatus, "vend failed: %s", result.Description)
	}
}

func (m *Monnify) toResult(req Request, body monnifyVendBody) *Result {
	amount := body.VendAmount
	if amount == 0 {
		amount = body.PayableAmount
	}
	if amount == 0 {
		amount = req.Amount
	}
	return &Result{
		Provider:    monnifyName,
		ProviderRef: body.TransactionReference,
		VendRef:     body.VendReference,
		Description: body.Description,
		VendAmount:  amount,
		Raw:         body.raw,
	}
}

// resolveProduct walks billers -> biller-products for the request's
// category and picks the product that matches the vend.
func (m *Monnify) resolveProduct(ctx context.Context, token string, req Request) (*monnifyProduct, error) {
	category := "AIRTIME"
	switch req.Kind {
	case KindData:
		category = "DATA_BUNDLE"
	case KindBill:
		category = req.BillerCode
	}

	billerCode := req.BillerCode
	if req.Kind != KindBill {
		var billers monnifyListEnvelope
		endpoint := "billers?category_code=" + url.QueryEscape(category) + "&size=100"
		if err := m.call(ctx, http.MethodGet, endpoint, token, nil, &billers); err != nil {
			return nil, err
		}

		network := strings.ToUpper(req.Network)
		billerCode = ""
		for _, b := range billers.ResponseBody.Content {
			if strings.ToUpper(b.Name) == network {
				billerCode = b.Code
				break
			}
		}
		if billerCode == "" {
			return nil, newError(monnifyName, "NO_BILLER", "no biller for network %s", req.Network)
		}
	}

	var products monnifyListEnvelope
	endpoint := "biller-products?biller_code=" + url.QueryEscape(billerCode) + "&size=200"
	if err := m.call(ctx, http.MethodGet, endpoint, token, nil, &products); err != nil {
		return nil, err
	}

	content := products.ResponseBody.Content
	switch req.Kind {
	case KindAirtime:
		for i := range content {
			name := strings.ToLower(content[i].Name)
			if strings.Contains(name, "airtime") || strings.Contains(name, "top up") {
				return &content[i], nil
			}
		}
		return nil, newError(monnifyName, "NO_PRODUCT", "no airtime product for %s", req.Network)
	case KindData:
		for i := range content {
			if content[i].Code == req.PlanID || strings.Contains(content[i].Name, req.PlanID) {
				return &content[i], nil
			}
		}
		return nil, newError(monnifyName, "NO_PRODUCT", "data plan %s not in catalog for %s", req.PlanID, req.Network)
	default:
		for i := range content {
			if content[i].Code == req.ProductCode {
				return &content[i], nil
			}
		}
		return nil, newError(monnifyName, "NO_PRODUCT", "bill product %s not found for biller %s", req.ProductCode, billerCode)
	}
}

type monnifyValidation struct {
	ValidationReference  string
	RequireValidationRef bool
}

func (m *Monnify) validateCustomer(ctx context.Context, token, productCode, customerID string) (*monnifyValidation, error) {
	payload := map[string]interface{}{
		"productCode": productCode,
		"customerId":  customerID,
	}

	var resp struct {
		RequestSuccessful bool `json:"requestSuccessful"`
		ResponseBody      struct {
			ValidationReference string `json:"validationReference"`
			VendInstruction     struct {
				RequireValidationRef bool `json:"requireValidationRef"`
			} `json:"vendInstruction"`
		} `json:"responseBody"`
	}
	if err := m.call(ctx, http.MethodPost, "validate-customer", token, payload, &resp); err != nil {
		return nil, err
	}

	return &monnifyValidation{
		ValidationReference:  resp.ResponseBody.ValidationReference,
		RequireValidationRef: resp.ResponseBody.VendInstruction.RequireValidationRef,
	}, nil
}

// accessToken returns a cached bearer token, logging in again only when the
// cache is cold. Cache failures degrade to a login per call.
func (m *Monnify) accessToken(ctx context.Context) (string, error) {
	if m.cache != nil {
		if token, err := m.cache.Get(ctx, monnifyTokenKey).Result(); err == nil && token != "" {
			return token, nil
		}
	}

	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.APIKey + ":" + m.cfg.SecretKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", newError(monnifyName, "AUTH", "build login request: %v", err)
	}
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := m.http.Do(req)
	if err != nil {
		return "", newError(monnifyName, "AUTH", "login request failed: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", newError(monnifyName, fmt.Sprintf("HTTP_%d", httpResp.StatusCode), "login rejected")
	}

	var body struct {
		RequestSuccessful bool `json:"requestSuccessful"`
		ResponseBody      struct {
			AccessToken string `json:"accessToken"`
			ExpiresIn   int64  `json:"expiresIn"`
		} `json:"responseBody"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return "", newError(monnifyName, "AUTH", "decode login response: %v", err)
	}
	if !body.RequestSuccessful || body.ResponseBody.AccessToken == "" {
		return "", newError(monnifyName, "AUTH", "login unsuccessful")
	}

	if m.cache != nil && body.ResponseBody.ExpiresIn > 60 {
		ttl := time.Duration(body.ResponseBody.ExpiresIn-60) * time.Second
		if err := m.cache.Set(ctx, monnifyTokenKey, body.ResponseBody.AccessToken, ttl).Err(); err != nil {
			m.logger.Warn("failed to cache access token", zap.Error(err))
		}
	}
	return body.ResponseBody.AccessToken, nil
}

// call hits the bills-payment API and decodes the envelope. Every failure
// is wrapped as *Error; transport details stay inside the adapter.
func (m *Monnify) call(ctx context.Context, method, endpoint, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return newError(monnifyName, "ENCODE", "marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	fullURL := m.cfg.BaseURL + "/api/v1/vas/bills-payment/" + endpoint
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return newError(monnifyName, "REQUEST", "build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return newError(monnifyName, "TRANSPORT", "%s %s failed: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(monnifyName, "TRANSPORT", "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(monnifyName, fmt.Sprintf("HTTP_%d", resp.StatusCode), "%s returned %d: %s", endpoint, resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(monnifyName, "DECODE", "decode %s response: %v", endpoint, err)
	}

	// keep the raw body for ledger audit where the target supports it
	if env, ok := out.(*monnifyEnvelope); ok {
		var asMap map[string]interface{}
		if json.Unmarshal(raw, &asMap) == nil {
			if rb, ok := asMap["responseBody"].(map[string]interface{}); ok {
				env.ResponseBody.raw = rb
			}
		}
	}
	return nil
}

type monnifyVendBody struct {
	VendStatus           string  `json:"vendStatus"`
	TransactionReference string  `json:"transactionReference"`
	VendReference        string  `json:"vendReference"`
	Description          string  `json:"description"`
	VendAmount           float64 `json:"vendAmount"`
	PayableAmount        float64 `json:"payableAmount"`
	Commission           float64 `json:"commission"`

	raw map[string]interface{}
}

type monnifyEnvelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseBody      monnifyVendBody `json:"responseBody"`
}

type monnifyProduct struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type monnifyListEnvelope struct {
	RequestSuccessful bool `json:"requestSuccessful"`
	ResponseBody      struct {
		Content []monnifyProduct `json:"content"`
	} `json:"responseBody"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
