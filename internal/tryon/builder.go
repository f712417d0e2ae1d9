// Package tryon implements the try-on generation pipeline core: building the
// multimodal request, invoking the Gemini model under a hard deadline, and
// classifying every failure into the closed set of user-facing categories.
package tryon

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/imaging"
)

// Request is the assembled multimodal payload for one generation call:
// one instruction text block followed by the shopper photo and the garment
// image, each tagged with its mime type.
type Request struct {
	Parts []genai.Part
}

// GenerationConfig is the explicit, auditable tuning applied to the model
// before a try-on call. Nothing here relies on implicit remote defaults.
type GenerationConfig struct {
	// Temperature biases the model toward faithful reproduction of the two
	// input images over creative variation. Keep it low.
	Temperature float32
	// SafetySettings relax only the categories irrelevant to dressed fashion
	// photography to block-only-high-confidence. Everything else keeps the
	// remote default.
	SafetySettings []*genai.SafetySetting
}

// NewGenerationConfig builds the standard try-on tuning around the given
// temperature.
func NewGenerationConfig(temperature float32) GenerationConfig {
	return GenerationConfig{
		Temperature: temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		},
	}
}

// BuildRequest assembles the generation request from the prepared shopper
// photo, the prepared garment image, and the garment metadata woven into the
// instruction text.
func BuildRequest(userPhoto, garmentImage imaging.Payload, g domain.Garment) Request {
	return Request{
		Parts: []genai.Part{
			genai.Text(instructionText(g)),
			genai.ImageData(mimeSubtype(userPhoto.MIME), userPhoto.Data),
			genai.ImageData(mimeSubtype(garmentImage.MIME), garmentImage.Data),
		},
	}
}

// instructionText renders the constraints the model must honor. The wording
// is deliberate: identity and pose are locked, the worn garment is fully
// replaced, the scene is preserved, and the output must be an image, never
// prose.
func instructionText(g domain.Garment) string {
	var b strings.Builder
	b.WriteString("You are a virtual fitting mirror for a fashion boutique.\n")
	b.WriteString("The first image is the customer. The second image is the garment: ")
	fmt.Fprintf(&b, "%q", g.Name)
	if d := strings.TrimSpace(g.Description); d != "" {
		fmt.Fprintf(&b, " - %s", d)
	}
	b.WriteString(".\n\n")
	b.WriteString("Generate a new photograph of this exact customer wearing the garment. Constraints:\n")
	b.WriteString("1. Preserve the customer's identity, face, body shape, and pose exactly as in the first image.\n")
	b.WriteString("2. Fully replace whatever the customer is currently wearing with the garment from the second image, keeping its color, fabric, and drape faithful.\n")
	b.WriteString("3. Preserve the background and lighting of the customer's photo; reconstruct them plausibly where the new garment uncovers the scene.\n")
	b.WriteString("4. The result must be photorealistic, like a high quality fashion photograph.\n")
	b.WriteString("5. Respond with the image only. Do not respond with text.\n")
	return b.String()
}

// mimeSubtype converts "image/jpeg" into the bare "jpeg" form the genai image
// part expects. Unknown values fall back to jpeg; this must never fail.
func mimeSubtype(mime string) string {
	if sub, ok := strings.CutPrefix(mime, "image/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}
