// Package apiclient performs the HTTP calls made by api_request steps.
package apiclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Response body parsing modes.
const (
	BodyAuto   = "auto"
	BodyJSON   = "json"
	BodyText   = "text"
	BodyBinary = "binary"
)

// DefaultTimeout applies when a request carries no timeout.
const DefaultTimeout = 10 * time.Second

// Request describes one HTTP call.
type Request struct {
	Method       string
	URL          string
	Headers      map[string]string
	Params       map[string]string
	JSON         interface{} // sent as a JSON body when non-empty
	Data         interface{} // form fields (map) or raw body (string) when JSON is empty
	Timeout      time.Duration
	ResponseType string
}

// Response is the parsed outcome of a request.
type Response struct {
	StatusCode int
	Headers    map[string]interface{}
	Body       interface{}
}

// AsMap returns the response in the shape stored by save_as:
// {status_code, headers, body}.
func (r *Response) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"status_code": r.StatusCode,
		"headers":     r.Headers,
		"body":        r.Body,
	}
}

// Client executes requests with resty.
type Client struct {
	http *resty.Client
}

// New creates a Client.
func New() *Client {
	return &Client{http: resty.New().SetRetryCount(0)}
}

// Do executes req. Transport failures are returned as errors; any HTTP status
// is a successful call.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("request URL is empty")
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := c.http.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetQueryParams(req.Params)

	switch {
	case !isEmpty(req.JSON):
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	case !isEmpty(req.Data):
		switch d := req.Data.(type) {
		case map[string]string:
			r.SetFormData(d)
		case map[string]interface{}:
			form := make(map[string]string, len(d))
			for k, v := range d {
				form[k] = fmt.Sprint(v)
			}
			r.SetFormData(form)
		default:
			r.SetBody(req.Data)
		}
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	headers := make(map[string]interface{}, len(resp.Header()))
	for k, v := range resp.Header() {
		headers[k] = strings.Join(v, ", ")
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       ParseBody(resp.Header().Get("Content-Type"), resp.Body(), req.ResponseType),
	}, nil
}

// ParseBody decodes raw according to mode. In auto mode JSON is decoded only
// when the content type mentions json or javascript; invalid JSON falls back
// to text in both auto and json modes.
func ParseBody(contentType string, raw []byte, mode string) interface{} {
	switch strings.ToLower(mode) {
	case BodyJSON:
		return parseJSON(raw)
	case BodyText:
		return string(raw)
	case BodyBinary:
		return base64.StdEncoding.EncodeToString(raw)
	default:
		ct := strings.ToLower(contentType)
		if strings.Contains(ct, "json") || strings.Contains(ct, "javascript") {
			return parseJSON(raw)
		}
		return string(raw)
	}
}

func parseJSON(raw []byte) interface{} {
	if !gjson.ValidBytes(raw) {
		return string(raw)
	}
	return gjson.ParseBytes(raw).Value()
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]interface{}:
		return len(t) == 0
	case map[string]string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}
