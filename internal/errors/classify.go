package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/oauth2"
)

// CodeInfo is the user-facing description attached to a code.
type CodeInfo struct {
	Message   string
	Hint      string
	Retryable bool
}

var codeInfo = map[Code]CodeInfo{
	CodeNetwork: {
		Message:   "Network error. Please check your connection.",
		Hint:      "Check your internet connection and try again.",
		Retryable: true,
	},
	CodeTokenExpired: {
		Message:   "Your session has expired. Please sign in again.",
		Hint:      "Sign in again to continue.",
		Retryable: false,
	},
	CodeRefreshFailed: {
		Message:   "Could not refresh your session.",
		Hint:      "Your current session stays active until it expires. Sign in again if problems persist.",
		Retryable: true,
	},
	CodeOffline: {
		Message:   "You are offline. Sign-in requires an internet connection.",
		Hint:      "Reconnect to the internet and try again.",
		Retryable: true,
	},
	CodeProviderUnavailable: {
		Message:   "The sign-in service is temporarily unavailable.",
		Hint:      "Wait a moment and try again.",
		Retryable: true,
	},
	CodeStorage: {
		Message:   "Could not access local storage.",
		Hint:      "Free up space or leave private browsing mode, then try again.",
		Retryable: false,
	},
	CodeConfiguration: {
		Message:   "Sign-in is not configured.",
		Hint:      "Set an OAuth client ID in the configuration.",
		Retryable: false,
	},
	CodeInvalidArgument: {
		Message:   "Invalid input.",
		Hint:      "Correct the highlighted fields and try again.",
		Retryable: false,
	},
	CodeUnknown: {
		Message:   "An unexpected error occurred.",
		Hint:      "Try again. If the problem persists, restart the application.",
		Retryable: true,
	},
}

// Info returns the fixed description of code. Unknown codes describe as CodeUnknown.
func Info(code Code) CodeInfo {
	if info, ok := codeInfo[code]; ok {
		return info
	}
	return codeInfo[CodeUnknown]
}

// Classify maps err onto the taxonomy. Structured errors are inspected first;
// message matching is only the last resort for errors raised by third parties.
func Classify(err error) Code {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_token":
			return CodeTokenExpired
		case "invalid_client", "unauthorized_client":
			return CodeConfiguration
		case "temporarily_unavailable", "server_error":
			return CodeProviderUnavailable
		}
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return CodeProviderUnavailable
		}
		return CodeRefreshFailed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return CodeNetwork
	}

	return classifyMessage(err.Error())
}

// classifyMessage is a heuristic and may misclassify.
func classifyMessage(msg string) Code {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "offline", "no internet"):
		return CodeOffline
	case containsAny(m, "invalid_grant", "expired", "token has been revoked"):
		return CodeTokenExpired
	case containsAny(m, "refresh"):
		return CodeRefreshFailed
	case containsAny(m, "network", "fetch", "connection refused", "no such host", "timeout"):
		return CodeNetwork
	case containsAny(m, "unavailable", "503", "502", "popup"):
		return CodeProviderUnavailable
	case containsAny(m, "storage", "quota", "indexeddb", "database", "disk"):
		return CodeStorage
	case containsAny(m, "client id", "client_id", "not configured", "configuration"):
		return CodeConfiguration
	}
	return CodeUnknown
}

// IsPermanentGrant reports whether err means the grant itself is dead, so
// retrying the refresh cannot succeed.
func IsPermanentGrant(err error) bool {
	if err == nil {
		return false
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant"
	}

	if Is(err, CodeTokenExpired) {
		return true
	}

	m := strings.ToLower(err.Error())
	return containsAny(m, "invalid_grant", "expired_token", "grant expired", "token expired")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
