package anthropic

import (
	"fmt"
	"strings"

	"github.com/adforge/adforge/internal/domain"
)

// buildGenerateAdPrompt creates the copywriting prompt for a new ad creative.
func buildGenerateAdPrompt(p domain.GenerateParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a compelling %s ad for %s, a product described as: %q. ",
		strings.ToLower(p.Tone), p.Product, p.Description)
	fmt.Fprintf(&b, "Target it to %s on %s. Make it short and catchy.", p.Audience, p.Platform)

	if p.Offer != "" {
		fmt.Fprintf(&b, " The current offer is: %s.", p.Offer)
	}
	if p.Goal != "" {
		fmt.Fprintf(&b, " The campaign goal is: %s.", p.Goal)
	}
	if p.Style != "" {
		fmt.Fprintf(&b, " Visual style direction: %s.", p.Style)
	}

	b.WriteString(`

Also write a prompt for an image generation model that produces the ad's background photograph. The image must contain no text of any kind and leave negative space for a headline overlay.

**Response Format:**
Return your output as a JSON object with this exact structure:

{
  "headline": "Short punchy headline (under 8 words)",
  "primary_text": "1-3 sentences of body copy",
  "cta": "Call to action (2-4 words)",
  "image_prompt": "Prompt for the background image"
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`)

	return b.String()
}

// buildOptimizePrompt creates the review prompt for an underperforming creative.
func buildOptimizePrompt(p domain.OptimizeParams) string {
	var b strings.Builder

	b.WriteString("You are a performance marketing analyst. Review this ad creative and its observed metrics, diagnose why it is underperforming, and propose an improved version.\n\n")

	fmt.Fprintf(&b, "Platform: %s\n", p.Platform)
	if p.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	}
	if p.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", p.Audience)
	}

	b.WriteString("\nCurrent creative:\n")
	fmt.Fprintf(&b, "- Headline: %s\n", p.Copy.Headline)
	fmt.Fprintf(&b, "- Primary text: %s\n", p.Copy.PrimaryText)
	fmt.Fprintf(&b, "- CTA: %s\n", p.Copy.CTA)
	if p.ImagePrompt != "" {
		fmt.Fprintf(&b, "- Image prompt: %s\n", p.ImagePrompt)
	}

	m := p.Metrics
	b.WriteString("\nObserved metrics:\n")
	fmt.Fprintf(&b, "- Impressions: %d\n", m.Impressions)
	fmt.Fprintf(&b, "- Clicks: %d\n", m.Clicks)
	fmt.Fprintf(&b, "- CTR: %.2f%%\n", m.CTR)
	fmt.Fprintf(&b, "- Spend: $%.2f\n", float64(m.SpendCents)/100)
	fmt.Fprintf(&b, "- Conversions: %d\n", m.Conversions)

	b.WriteString(`
**Response Format:**
Return your analysis as a JSON object with this exact structure:

{
  "summary": "One-paragraph diagnosis",
  "likely_issues": ["issue 1", "issue 2"],
  "recommended_changes": ["change 1", "change 2"],
  "improved_headline": "New headline",
  "improved_primary_text": "New primary text",
  "improved_cta": "New CTA",
  "improved_image_prompt": "New background image prompt, no text in image"
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`)

	return b.String()
}

const systemPrompt = "You are a creative ad copywriter."
