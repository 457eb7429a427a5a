// Package gateway is the only network surface of the application. Two
// specialized callers talk to the hosted Gemini API: the Analyzer uses a
// fast/cheap text model for photo analysis and prompt rewriting, and the
// Generator drives the image-synthesis model. Both normalize every transport
// and refusal error into the taxonomy in errors.go and report token usage to
// the ledger.
package gateway

// UsageRecorder receives a cost-estimate entry per remote call.
type UsageRecorder interface {
	Record(action, model string, inputTokens, outputTokens int)
}

// CredentialSource resolves the API key at call time, so a key entered or
// cleared through the UI takes effect without restarting anything.
type CredentialSource interface {
	Get() (string, bool)
}

// SubjectProfile is one detected person in an analyzed photo.
type SubjectProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type noopRecorder struct{}

func (noopRecorder) Record(string, string, int, int) {}
