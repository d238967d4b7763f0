package domain

// Ad creative and optimizer types exchanged with the AI generation endpoints.

// AdCopy is the text portion of a generated ad creative.
type AdCopy struct {
	Headline    string `json:"headline"`
	PrimaryText string `json:"primary_text"`
	CTA         string `json:"cta"`
}

// AdCreative is a complete generation result: copy plus a hosted image.
type AdCreative struct {
	Copy     AdCopy `json:"copy"`
	ImageURL string `json:"imageUrl"`
}

// GenerateParams describes the ad to generate.
type GenerateParams struct {
	Product     string `json:"product"`
	Description string `json:"description"`
	Audience    string `json:"audience"`
	Tone        string `json:"tone"`
	Platform    string `json:"platform"`
	Style       string `json:"style"`
	Offer       string `json:"offer"`
	Goal        string `json:"goal"`
}

// Validate checks the minimum fields a generation request needs.
func (p GenerateParams) Validate() error {
	const op = "creative.generate_params"
	if p.Product == "" {
		return NewValidationError(op, "product", "Product is required")
	}
	if p.Description == "" {
		return NewValidationError(op, "description", "Description is required")
	}
	return nil
}

// CreativeMetrics are the observed performance numbers fed to the optimizer.
type CreativeMetrics struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	CTR         float64 `json:"ctr"`
	SpendCents  int     `json:"spend_cents"`
	Conversions int     `json:"conversions"`
}

// OptimizeParams carries the campaign context and current creative.
type OptimizeParams struct {
	Platform    string          `json:"platform"`
	Goal        string          `json:"goal"`
	Audience    string          `json:"audience"`
	Copy        AdCopy          `json:"copy"`
	ImagePrompt string          `json:"image_prompt"`
	Metrics     CreativeMetrics `json:"metrics"`
}

// Validate checks the minimum fields an optimize request needs.
func (p OptimizeParams) Validate() error {
	const op = "creative.optimize_params"
	if p.Copy.Headline == "" && p.Copy.PrimaryText == "" {
		return NewValidationError(op, "copy", "Current creative copy is required")
	}
	return nil
}

// OptimizerReport is the structured optimizer output.
type OptimizerReport struct {
	Summary             string   `json:"summary"`
	LikelyIssues        []string `json:"likely_issues"`
	RecommendedChanges  []string `json:"recommended_changes"`
	ImprovedHeadline    string   `json:"improved_headline"`
	ImprovedPrimaryText string   `json:"improved_primary_text"`
	ImprovedCTA         string   `json:"improved_cta"`
	ImprovedImagePrompt string   `json:"improved_image_prompt"`
}
