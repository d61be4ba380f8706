package errors

import (
	"fmt"
	"strings"
)

// UserMessage returns the single text shown to the requester for err.
// provider is the display name of the media source ("Instagram").
func UserMessage(err error, provider string) string {
	if err == nil {
		return ""
	}
	if IsTooLarge(err) {
		if limit, ok := GetFields(err)["limit"].(int64); ok {
			return fmt.Sprintf("The file is larger than the %s limit.", formatLimit(limit))
		}
		return "The file is too large to send."
	}

	switch GetCode(err) {
	case CodeNotFound:
		return "Media not found or it was removed."
	case CodeUnsupported:
		return "This link is not supported."
	case CodeAuthRequired:
		name := provider
		if name == "" {
			name = "this provider"
		}
		return fmt.Sprintf("This is private media or %s is not configured or has expired.", CredentialKey(name))
	case CodeTransient:
		return "The link could not be opened right now. This may be a temporary problem."
	case CodeBusy:
		return "Please wait until your previous request completes."
	default:
		return "Unknown error occurred. Please try again later."
	}
}

// CredentialKey returns the environment key that carries the provider cookie.
func CredentialKey(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, " ", "_")) + "_COOKIE"
}

func formatLimit(b int64) string {
	const (
		mib = 1024 * 1024
		gib = 1024 * mib
	)
	switch {
	case b >= gib && b%gib == 0:
		return fmt.Sprintf("%d GiB", b/gib)
	case b >= mib:
		return fmt.Sprintf("%d MiB", b/mib)
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
