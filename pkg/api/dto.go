package api

type CreateCampaignRequest struct {
	URL        string `json:"url"`
	Address    string `json:"address,omitempty"`
	BrandVoice string `json:"brand_voice,omitempty"`
}

type CreateCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
