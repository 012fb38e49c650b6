package api

type (
	// EnrollRequest lists the contacts to enroll into a campaign
	EnrollRequest struct {
		ContactIDs []ContactID `json:"contact_ids" binding:"required,min=1"`
	}

	// RunRequest names the campaigns whose enrolled contacts should be started
	RunRequest struct {
		CampaignIDs []CampaignID `json:"campaign_ids"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		HealthState
	}

	// HealthListResponse contains the polled health of every account
	HealthListResponse struct {
		Health map[AccountID]*AccountHealth `json:"health"`
		Count  int                          `json:"count"`
	}

	// ErrorResponse is returned when an API request fails
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
)
