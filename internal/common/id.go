package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a job ID with the "job_" prefix for jobs created without one
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewSubscriptionID generates an observer ID with the "sub_" prefix
func NewSubscriptionID() string {
	return "sub_" + uuid.New().String()
}
