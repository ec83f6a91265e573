// internal/provider/plancode.go
package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// The two providers use incompatible identifiers for logically identical
// products. Translator maps a caller-catalog plan id to the fallback
// provider's native code: exact table first, token reconstruction second.

var peyflexDataNetworks = map[string]string{
	"MTN":         "mtn_gifting_data",
	"MTN_GIFTING": "mtn_gifting_data",
	"MTN_SME":     "mtn_sme_data",
	"AIRTEL":      "airtel_data",
	"GLO":         "glo_data",
	"9MOBILE":     "9mobile_data",
}

// PeyflexDataNetwork maps a caller network name to the fallback provider's
// data catalog identifier. Unknown networks pass through lowercased.
func PeyflexDataNetwork(network string) string {
	key := strings.ToUpper(strings.TrimSpace(network))
	if id, ok := peyflexDataNetworks[key]; ok {
		return id
	}
	return strings.ToLower(key)
}

type Translator struct {
	// exact maps NETWORK -> source plan id -> target plan id.
	exact map[string]map[string]string
}

func NewTranslator(table map[string]map[string]string) *Translator {
	if table == nil {
		table = defaultPlanTable()
	}
	return &Translator{exact: table}
}

// Translate resolves the fallback provider's plan code for a caller plan
// id. When no exact mapping exists it extracts the volume and validity
// tokens and rebuilds the target naming convention
// (<network>-<volume>-<validity>). Untranslatable plans are an error; the
// orchestrator skips the adapter and counts it as a provider failure.
func (t *Translator) Translate(network, planID string) (string, error) {
	net := strings.ToUpper(strings.TrimSpace(network))
	if byNet, ok := t.exact[net]; ok {
		if target, ok := byNet[planID]; ok {
			return target, nil
		}
	}

	volume, validity := extractPlanTokens(planID)
	if volume == "" {
		return "", fmt.Errorf("no plan translation for %s plan %q", network, planID)
	}
	code := strings.ToLower(net) + "-" + volume
	if validity != "" {
		code += "-" + validity
	}
	return code, nil
}

var (
	volumePattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(gb|mb|tb)`)
	daysPattern     = regexp.MustCompile(`(?i)(\d+)\s*days?`)
	durationPattern = regexp.MustCompile(`(?i)\b(daily|weekly|monthly)\b`)
)

// extractPlanTokens pulls the data volume and validity period out of a plan
// id or name. Returns normalised lowercase tokens, empty when absent.
func extractPlanTokens(planID string) (volume, validity string) {
	if m := volumePattern.FindStringSubmatch(planID); m != nil {
		volume = strings.ToLower(m[1] + m[2])
	}
	if m := daysPattern.FindStringSubmatch(planID); m != nil {
		validity = m[1] + "days"
	} else if m := durationPattern.FindStringSubmatch(planID); m != nil {
		validity = strings.ToLower(m[1])
	}
	return volume, validity
}

// planKeyTerms are the tokens that identify a plan regardless of provider
// naming. Two plan names naming at least one common term are considered
// the same product family.
var planKeyTerms = []string{"1gb", "2gb", "500mb", "230mb", "daily", "weekly", "monthly", "7 days", "30 days"}

// SimilarPlanNames reports whether two plan names share a key term. Used by
// delivered-plan validation after a vend.
func SimilarPlanNames(requested, delivered string) bool {
	req := strings.ToLower(requested)
	del := strings.ToLower(delivered)
	for _, term := range planKeyTerms {
		if strings.Contains(req, term) && strings.Contains(del, term) {
			return true
		}
	}
	return false
}

// defaultPlanTable seeds the exact mappings confirmed against both
// provider catalogs. Everything else goes through token reconstruction.
func defaultPlanTable() map[string]map[string]string {
	return map[string]map[string]string{
		"MTN": {
			"MTN-1GB-30D":   "mtn-1gb-monthly",
			"MTN-2GB-30D":   "mtn-2gb-monthly",
			"MTN-500MB-7D":  "mtn-500mb-weekly",
			"MTN-230MB-1D":  "mtn-230mb-daily",
		},
		"AIRTEL": {
			"AIRTEL-1GB-30D":  "airtel-1gb-monthly",
			"AIRTEL-500MB-7D": "airtel-500mb-weekly",
		},
		"GLO": {
			"GLO-1GB-30D": "glo-1gb-monthly",
		},
		"9MOBILE": {
			"9MOBILE-1GB-30D": "9mobile-1gb-monthly",
		},
	}
}
