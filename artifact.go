package predictor

import (
	"io"
	"time"

	"github.com/avoskamp/go-predictor/crossval"
	"github.com/avoskamp/go-predictor/ensemble"
	"github.com/avoskamp/go-predictor/forecast"
	"github.com/goccy/go-json"
)

// CandidateDiagnostic records how one candidate fared during validation. A
// candidate excluded from selection carries the failure reason; its partial
// cross-validation result is retained when one exists so skipped-fold
// warnings survive for inspection.
type CandidateDiagnostic struct {
	Model  string           `json:"model"`
	Result *crossval.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Artifact is the immutable output of one pipeline invocation: the chosen
// model or ensemble weights, the horizon forecast with confidence bounds, and
// the cross-validation diagnostics that justified the choice. It serializes
// to plain structured data for persistence or display by the caller.
type Artifact struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	Horizon         int             `json:"horizon"`
	ConfidenceLevel float64         `json:"confidence_level"`
	Policy          ensemble.Policy `json:"policy"`

	// ChosenModel is set under the best-of policy. Weights always holds
	// the final weight per production model and sums to 1.
	ChosenModel string             `json:"chosen_model,omitempty"`
	Weights     map[string]float64 `json:"weights"`

	Points []forecast.Point `json:"points"`

	// Scores are the weight-averaged cross-validation scores of the
	// production model(s).
	Scores forecast.Scores `json:"scores"`

	Diagnostics []CandidateDiagnostic `json:"diagnostics"`
}

// JSON serializes the artifact.
func (a *Artifact) JSON() ([]byte, error) {
	return json.Marshal(a)
}

// WriteJSON streams the artifact as JSON to the writer.
func (a *Artifact) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(a)
}
