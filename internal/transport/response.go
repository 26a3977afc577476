package transport

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	Timing     Timing
}

// Timing breaks down where the time of a request went.
type Timing struct {
	DNSLookup       time.Duration `json:"dnsLookup"`
	TCPConnect      time.Duration `json:"tcpConnect"`
	TLSHandshake    time.Duration `json:"tlsHandshake"`
	TimeToFirstByte time.Duration `json:"timeToFirstByte"`
	ContentTransfer time.Duration `json:"contentTransfer"`
}

// IsSuccess reports whether the status code is below 400.
func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode > 0 && r.StatusCode < 400
}

// String returns the body as a string.
func (r *Response) String() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
