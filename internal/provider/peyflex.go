// internal/provider/peyflex.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const peyflexName = "peyflex"

type PeyflexConfig struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
}

// Peyflex is the fallback adapter. Single-shot vends, auth with the
// provider's "Token" header scheme, no requery endpoint.
type Peyflex struct {
	cfg        PeyflexConfig
	http       *http.Client
	translator *Translator
	logger     *zap.Logger
}

func NewPeyflex(cfg PeyflexConfig, translator *Translator, logger *zap.Logger) *Peyflex {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if translator == nil {
		translator = NewTranslator(nil)
	}
	return &Peyflex{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		translator: translator,
		logger:     logger,
	}
}

func (p *Peyflex) Name() string { return peyflexName }

func (p *Peyflex) Purchase(ctx context.Context, req Request) (*Result, error) {
	var endpoint string
	payload := map[string]interface{}{
		"network":       strings.ToLower(req.Network),
		"mobile_number": req.PhoneNumber,
	}

	switch req.Kind {
	case KindAirtime:
		endpoint = "/api/airtime/topup/"
		payload["amount"] = int(req.Amount)
	case KindData:
		endpoint = "/api/data/purchase/"
		planCode, err := p.translator.Translate(req.Network, req.PlanID)
		if err != nil {
			// Untranslatable plan counts as a provider failure so the
			// orchestrator moves on without calling us.
			return nil, newError(peyflexName, "NO_PLAN", "%v", err)
		}
		payload["plan_code"] = planCode
	default:
		return nil, newError(peyflexName, "UNSUPPORTED", "kind %s not supported", req.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(peyflexName, "ENCODE", "marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, newError(peyflexName, "REQUEST", "build request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, newError(peyflexName, "TRANSPORT", "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(peyflexName, "TRANSPORT", "read response: %v", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, newError(peyflexName, "HTTP_400", "invalid request: %s", peyflexMessage(body))
	case http.StatusForbidden:
		return nil, newError(peyflexName, "HTTP_403", "access denied: check API credentials and account status")
	case http.StatusNotFound:
		return nil, newError(peyflexName, "HTTP_404", "endpoint not found: check API URL")
	default:
		return nil, newError(peyflexName, fmt.Sprintf("HTTP_%d", resp.StatusCode), "api error: %s", truncate(string(body), 200))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, newError(peyflexName, "DECODE", "invalid response format: %v", err)
	}

	result := &Result{
		Provider:    peyflexName,
		ProviderRef: stringField(decoded, "reference", "transaction_id", "id"),
		Description: stringField(decoded, "plan_name", "description", "message"),
		VendAmount:  numberField(decoded, "amount", "price"),
		Raw:         decoded,
	}
	if result.VendAmount == 0 {
		result.VendAmount = req.Amount
	}

	p.logger.Info("peyflex vend succeeded",
		zap.String("reference", req.Reference),
		zap.String("network", req.Network),
		zap.String("kind", string(req.Kind)))
	return result, nil
}

func peyflexMessage(body []byte) string {
	var decoded struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &decoded) == nil && decoded.Message != "" {
		return decoded.Message
	}
	return truncate(string(body), 200)
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func numberField(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
