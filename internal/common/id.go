package common

import (
	"github.com/google/uuid"
)

// NewAdvisoryID generates a unique advisory ID with the "adv_" prefix
// Format: adv_<uuid>
func NewAdvisoryID() string {
	return "adv_" + uuid.New().String()
}

// NewAnalysisID generates a unique analysis result ID with the "ana_" prefix
// Format: ana_<uuid>
func NewAnalysisID() string {
	return "ana_" + uuid.New().String()
}

// NewRecommendationID generates a unique recommendation ID with the "rec_" prefix
// Format: rec_<uuid>
func NewRecommendationID() string {
	return "rec_" + uuid.New().String()
}
