package protocol

// Result strings carried in responses.
const (
	ResultDone    = "done"
	ResultSuccess = "success"
	ResultError   = "error"
)

// FetchNVCNResponse is the unsealed answer to security-fetch-nvcn.
type FetchNVCNResponse struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	NVCN     string `json:"nvcn"`
}

// PasswordChangeResponse carries the new password version.
type PasswordChangeResponse struct {
	Type                  string `json:"type"`
	DeviceID              string `json:"deviceId"`
	CurrentPasswordNumber uint32 `json:"currentPasswordNumber"`
	Result                string `json:"result"`
}

// RenameResponse carries the stored device name.
type RenameResponse struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	NewName  string `json:"newName"`
	Result   string `json:"result"`
}

// StatusResponse answers wifi-config, reset-to-default and restart.
type StatusResponse struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Result   string `json:"result"`
}

// ControlResponse echoes the executed action.
type ControlResponse struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
	Result   string `json:"result"`
}

// MeasureResponse carries a reading.
type MeasureResponse struct {
	Type     string  `json:"type"`
	DeviceID string  `json:"deviceId"`
	Action   string  `json:"action"`
	Value    float64 `json:"value"`
	Result   string  `json:"result"`
}
