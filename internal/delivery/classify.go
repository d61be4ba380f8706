package delivery

import "mediarelay/internal/pkg/errors"

// TransportClassifier maps chat transport failures of a URL handoff.
var TransportClassifier = errors.Classifier{
	Op: "delivery.transport",
	Rules: []errors.Rule{
		{Contains: "failed to get HTTP URL content", Code: errors.CodeTransient},
		{Contains: "wrong file identifier/HTTP URL specified", Code: errors.CodeTransient},
		{Contains: "wrong type of the web page content", Code: errors.CodeTransient},
		{Contains: "webpage_curl_failed", Code: errors.CodeTransient},
		{Contains: "webpage_media_empty", Code: errors.CodeTransient},
		{Contains: "too many requests", Code: errors.CodeTransient},
		{Contains: "timeout", Code: errors.CodeTransient},
		{Contains: "deadline exceeded", Code: errors.CodeTransient},
		{Contains: "connection reset", Code: errors.CodeTransient},
		{Contains: "403", Code: errors.CodeUnretryable},
		{Contains: "URL host is empty", Code: errors.CodeUnretryable},
		{Contains: "expired", Code: errors.CodeUnretryable},
		{Contains: "request entity too large", Code: errors.CodeUnretryable, Reason: errors.ReasonTooLarge},
		{Contains: "file is too big", Code: errors.CodeUnretryable, Reason: errors.ReasonTooLarge},
	},
}

// FetchClassifier maps failures of downloading a locator ourselves.
var FetchClassifier = errors.Classifier{
	Op: "delivery.fetch",
	Rules: []errors.Rule{
		{Contains: "status 401", Code: errors.CodeUnretryable},
		{Contains: "status 403", Code: errors.CodeUnretryable},
		{Contains: "status 404", Code: errors.CodeUnretryable},
		{Contains: "status 410", Code: errors.CodeUnretryable},
		{Contains: "status 429", Code: errors.CodeTransient},
		{Contains: "status 5", Code: errors.CodeTransient},
		{Contains: "status 4", Code: errors.CodeUnretryable},
		{Contains: "timeout", Code: errors.CodeTransient},
		{Contains: "connection reset", Code: errors.CodeTransient},
		{Contains: "connection refused", Code: errors.CodeTransient},
		{Contains: "unexpected EOF", Code: errors.CodeTransient},
		{Contains: "no such host", Code: errors.CodeTransient},
	},
}
