package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// User-facing messages for failures that carry no usable message of their own.
const (
	MessageNotFound       = "Ressource non trouvée. Veuillez vérifier l'URL ou contacter le support."
	MessageServerError    = "Erreur du serveur. Veuillez réessayer plus tard ou contacter le support."
	MessageNetworkError   = "Erreur de connexion. Veuillez vérifier votre connexion internet et réessayer."
	MessageGenericError   = "Une erreur est survenue. Veuillez réessayer."
	MessageSessionExpired = "Votre session a expiré. Veuillez vous reconnecter."
)

// Error is a failed API call reduced to something that can be shown to the user.
// Status is 0 when no response was received.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api: %s", e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// messageKeys are tried in order on an error body.
var messageKeys = []string{"details", "detail", "error", "message"}

func statusError(status int, body []byte) *Error {
	switch {
	case status == 404:
		return &Error{Status: status, Message: MessageNotFound}
	case status >= 500:
		return &Error{Status: status, Message: MessageServerError}
	}
	return &Error{Status: status, Message: bodyMessage(body)}
}

func bodyMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range messageKeys {
			if msg := stringify(fields[key]); msg != "" {
				return msg
			}
		}
		return MessageGenericError
	}

	var text string
	if err := json.Unmarshal(body, &text); err == nil && text != "" {
		return text
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	return MessageGenericError
}

// stringify renders a message field, which the backend sends either as a string or
// as a list of strings.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
