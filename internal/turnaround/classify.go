package turnaround

import (
	"errors"
	"strings"

	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/modeljson"
	"turnaround-studio/internal/retry"
)

// Status is the user-facing failure category of a run.
type Status string

const (
	StatusOverloaded Status = "overloaded"
	StatusQuota      Status = "quota"
	StatusBadKey     Status = "bad_credential"
	StatusMalformed  Status = "malformed"
	StatusGeneric    Status = "generic"
)

// Classify buckets a run error by sentinel and by substring over the error
// text, mirroring how the hosted API words its failures.
func Classify(err error) Status {
	if err == nil {
		return StatusGeneric
	}

	if errors.Is(err, modeljson.ErrMalformed) || errors.Is(err, gemini.ErrNoImage) {
		return StatusMalformed
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "429"):
		return StatusQuota
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "permission_denied"),
		strings.Contains(msg, "unauthenticated"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return StatusBadKey
	case retry.Overloaded(err):
		return StatusOverloaded
	}
	return StatusGeneric
}

var statusMessages = map[Status]string{
	StatusOverloaded: "The model is overloaded right now. Please try again in a minute.",
	StatusQuota:      "The API quota is exhausted. Wait for it to reset before trying again.",
	StatusBadKey:     "The API key is missing or invalid. Check the GEMINI_API_KEY configuration.",
	StatusMalformed:  "The model returned an unusable response. Try again, or try a different photo.",
	StatusGeneric:    "Generation failed. Please try again.",
}

// Message returns the user-visible status string for an error.
func Message(err error) string {
	return statusMessages[Classify(err)]
}
