package jobs

import (
	"encoding/json"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobx"
)

var jobsErrors = errx.NewRegistry("JOBS")

var ErrUnknownQueue = jobsErrors.Register("UNKNOWN_QUEUE", errx.TypeValidation, 400, "Unknown queue")

func validateAs[P any](raw json.RawMessage) error {
	_, err := jobx.DecodePayload[P](raw)
	return err
}
