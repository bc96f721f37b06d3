package replicate

import (
	"encoding/json"
	"fmt"
)

// WebhookPayload is the completion callback body. Only the terminal
// fields the relay consumes are decoded.
type WebhookPayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Output  Output `json:"output"`
	Error   string `json:"error"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

// Output tolerates the three shapes the provider has been observed to
// deliver: a bare URL string, an array of outputs, or an object with a
// url field. Arrays take their first element.
type Output struct {
	URL string
}

func (o *Output) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.URL = s
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			o.URL = ""
			return nil
		}
		var first Output
		if err := first.UnmarshalJSON(arr[0]); err != nil {
			return err
		}
		*o = first
		return nil
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unexpected output shape: %w", err)
	}
	o.URL = obj.URL
	return nil
}
