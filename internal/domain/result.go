package domain

// ProcessingResult is the terminal value of one try-on attempt. It is never
// persisted and never mutated after construction.
//
// Exactly one of ImageURL / Message is populated: ImageURL carries a data-URI
// of the generated composite on success, Message carries a user-safe
// diagnostic on failure. Category is the stable machine-readable failure
// class (empty on success). Retryable tells the client whether offering a
// "try again" action makes sense or the failure needs an out-of-band fix
// (credentials, credits).
type ProcessingResult struct {
	Success   bool   `json:"success"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Message   string `json:"message,omitempty"`
	Category  string `json:"category,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// SuccessResult builds a successful ProcessingResult around a composite image.
func SuccessResult(imageURL string) ProcessingResult {
	return ProcessingResult{Success: true, ImageURL: imageURL}
}

// FailureResult builds a failed ProcessingResult carrying a user-safe message.
func FailureResult(category, message string, retryable bool) ProcessingResult {
	return ProcessingResult{Success: false, Category: category, Message: message, Retryable: retryable}
}
