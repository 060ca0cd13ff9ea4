package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// paramString flattens a params object into the canonical signing string:
// keys sorted, each key concatenated with its serialized value, recursing
// into nested objects and arrays. An empty object serializes to an empty
// string, not "{}".
func paramString(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(serializeValue(params[k]))
	}
	return sb.String()
}

func serializeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]any:
		return paramString(val)
	case []any:
		var sb strings.Builder
		for _, item := range val {
			sb.WriteString(serializeValue(item))
		}
		return sb.String()
	case []map[string]any:
		var sb strings.Builder
		for _, item := range val {
			sb.WriteString(paramString(item))
		}
		return sb.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sign computes HMAC-SHA256(secret, method + id + apiKey + paramString + nonce).
func sign(secret, method string, id int64, apiKey string, params map[string]any, nonce int64) string {
	payload := method + strconv.FormatInt(id, 10) + apiKey + paramString(params) + strconv.FormatInt(nonce, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
