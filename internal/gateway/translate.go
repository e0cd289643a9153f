package gateway

import (
	"encoding/json"
	"net/http"

	"ocrgateway/internal/ocr"
	"ocrgateway/pkg/models"
)

// FailureMessage is the fixed message of every engine failure envelope.
const FailureMessage = "Failed to recognize text from PDF."

// Translate maps the engine's answer onto the gateway's response. 2xx passes
// the body through verbatim with status 200; any other status becomes a
// failure envelope carrying the engine's status and body.
func Translate(resp *ocr.Response) *models.Result {
	if resp.Successful() {
		return &models.Result{
			StatusCode: http.StatusOK,
			Payload:    json.RawMessage(resp.Body),
		}
	}

	// A body that is not JSON cannot be embedded; it is reported as null
	var details json.RawMessage
	if len(resp.Body) > 0 && json.Valid(resp.Body) {
		details = json.RawMessage(resp.Body)
	}

	return &models.Result{
		StatusCode: resp.StatusCode,
		Failure: &models.Failure{
			StatusCode: resp.StatusCode,
			Message:    FailureMessage,
			Details:    details,
		},
	}
}
