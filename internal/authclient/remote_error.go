package authclient

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// remoteError is the JSON error body of the remote auth service.
type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// remoteCodes maps error codes of the remote to the client taxonomy. Unknown
// codes fall back to the HTTP status.
//
//nolint:gochecknoglobals
var remoteCodes = map[string]domain.ErrorCode{
	"INVALID_EMAIL_OR_PASSWORD":             domain.CodeInvalidCredentials,
	"INVALID_PASSWORD":                      domain.CodeInvalidCredentials,
	"CREDENTIAL_ACCOUNT_NOT_FOUND":          domain.CodeInvalidCredentials,
	"INVALID_EMAIL":                         domain.CodeValidation,
	"PASSWORD_TOO_SHORT":                    domain.CodeValidation,
	"PASSWORD_TOO_LONG":                     domain.CodeValidation,
	"USER_ALREADY_EXISTS":                   domain.CodeUserAlreadyExists,
	"USER_ALREADY_EXISTS_USE_ANOTHER_EMAIL": domain.CodeUserAlreadyExists,
	"INVALID_TOKEN":                         domain.CodeInvalidToken,
	"TOO_MANY_REQUESTS":                     domain.CodeRateLimited,
}

func errorFromResponse(status int, payload []byte, signIn bool) *domain.AuthError {
	var body remoteError
	_ = json.Unmarshal(payload, &body)

	authErr := &domain.AuthError{
		Code:    codeFromStatus(status, signIn),
		Message: body.Message,
		Status:  status,
	}

	code := strings.ToUpper(body.Code)
	if mapped, ok := remoteCodes[code]; ok {
		authErr.Code = mapped
	} else if _, ok := knownCodes[domain.ErrorCode(code)]; ok {
		authErr.Code = domain.ErrorCode(code)
	}

	if authErr.Message == "" {
		authErr.Message = strings.ToLower(http.StatusText(status))
	}

	return authErr
}

//nolint:gochecknoglobals
var knownCodes = map[domain.ErrorCode]struct{}{
	domain.CodeNetwork:            {},
	domain.CodeInvalidCredentials: {},
	domain.CodeValidation:         {},
	domain.CodeRateLimited:        {},
	domain.CodeUnauthorized:       {},
	domain.CodeUserAlreadyExists:  {},
	domain.CodeInvalidToken:       {},
}

func codeFromStatus(status int, signIn bool) domain.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		if signIn {
			return domain.CodeInvalidCredentials
		}

		return domain.CodeUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.CodeValidation
	case http.StatusConflict:
		return domain.CodeUserAlreadyExists
	case http.StatusTooManyRequests:
		return domain.CodeRateLimited
	default:
		return domain.CodeUnknown
	}
}
