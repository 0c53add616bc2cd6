package http

// JobParams carries the user-supplied template parameters for a job.
type JobParams struct {
	Text string `json:"text"`
	// Image is a base64-encoded reference image, required for img2img.
	Image string `json:"image,omitempty"`
}

// JobRequest is the dispatch request body.
type JobRequest struct {
	ServiceType  string    `json:"service_type"`
	ClientTaskID string    `json:"client_task_id"`
	CallbackURL  string    `json:"callback_url,omitempty"`
	Params       JobParams `json:"params"`
}

// ErrorResponse is the error envelope shared by all endpoints.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}
