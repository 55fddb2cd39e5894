package executor

import (
	"context"
	"fmt"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/apiclient"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

type apiExtract struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

type apiRequestParams struct {
	Method         string                 `json:"method" default:"GET"`
	URL            string                 `json:"url" validate:"required"`
	Headers        map[string]interface{} `json:"headers"`
	Params         map[string]interface{} `json:"params"`
	JSON           interface{}            `json:"json"`
	Data           interface{}            `json:"data"`
	Timeout        float64                `json:"timeout" default:"10" validate:"gte=0"`
	ResponseType   string                 `json:"response_type" default:"auto" validate:"oneof=auto json text binary"`
	ExpectedStatus *int                   `json:"expected_status"`
	SaveAs         string                 `json:"save_as"`
	Scope          string                 `json:"scope" default:"local"`
	Extracts       []apiExtract           `json:"extracts"`
}

// actionAPIRequest performs an HTTP call, checks expected_status, stores the
// response under save_as and runs the extracts against
// {status_code, headers, body}.
func (e *Engine) actionAPIRequest(ctx context.Context, step flow.Step) error {
	var p apiRequestParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}

	logger.Info("HTTP request: %s %s", p.Method, p.URL)
	resp, err := e.http.Do(ctx, apiclient.Request{
		Method:       p.Method,
		URL:          p.URL,
		Headers:      stringMap(p.Headers),
		Params:       stringMap(p.Params),
		JSON:         p.JSON,
		Data:         p.Data,
		Timeout:      flow.Seconds(p.Timeout),
		ResponseType: p.ResponseType,
	})
	if err != nil {
		logger.Error("HTTP request failed: %v", err)
		return err
	}
	logger.Info("HTTP response: %d", resp.StatusCode)

	if p.ExpectedStatus != nil && resp.StatusCode != *p.ExpectedStatus {
		return core.ErrStatusMismatch.
			WithMessage(fmt.Sprintf("HTTP status assertion failed: expected %d, got %d", *p.ExpectedStatus, resp.StatusCode)).
			WithDetails(map[string]interface{}{"expected": *p.ExpectedStatus, "actual": resp.StatusCode})
	}

	result := resp.AsMap()
	scope := vars.ParseScope(p.Scope)
	if p.SaveAs != "" {
		e.store.Set(p.SaveAs, result, scope)
	}

	for _, ex := range p.Extracts {
		if ex.Name == "" {
			logger.Warn("extract without name skipped: %+v", ex)
			continue
		}
		value, err := vars.Extract(result, ex.Path)
		if err != nil {
			return err
		}
		exScope := scope
		if ex.Scope != "" {
			exScope = vars.ParseScope(ex.Scope)
		}
		e.store.Set(ex.Name, value, exScope)
		logger.Info("extracted %s -> %s.%s = %v", ex.Path, exScope, ex.Name, value)
	}
	return nil
}

func stringMap(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = vars.ToString(v)
	}
	return out
}
