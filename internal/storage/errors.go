package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrNoStorageAvailable = errors.New("no storage account available")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrTransient          = errors.New("transient storage error")
)

type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
	KindQuota
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	}
	return "permanent"
}

// ProviderError is a failed provider call classified by its HTTP status.
// StatusCode is 0 when the request never got a response.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s provider error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s provider error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Is lets callers match provider errors against the package sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Kind == KindQuota
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// ClassifyStatus maps a provider HTTP status to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusPaymentRequired, status == http.StatusInsufficientStorage:
		return KindQuota
	case status == http.StatusRequestTimeout, status == 420, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	}
	return KindPermanent
}

var quotaPhrases = []string{"storage limit", "quota", "usage limit", "plan limit", "exceeded your"}

// ClassifyResponse refines ClassifyStatus with the provider's structured error
// message. Cloudinary reports an over-limit account as 400 or 420 with a
// message naming the limit.
func ClassifyResponse(status int, message string) ErrorKind {
	if status == http.StatusBadRequest || status == 420 || status == http.StatusTooManyRequests {
		msg := strings.ToLower(message)
		for _, phrase := range quotaPhrases {
			if strings.Contains(msg, phrase) {
				return KindQuota
			}
		}
	}
	return ClassifyStatus(status)
}

// kindOf classifies any error returned by a Provider.
func kindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindPermanent
}
