package executor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["user"] != "alice" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"token": "abc",
				"items": []interface{}{map[string]interface{}{"id": 1}, map[string]interface{}{"id": 2}},
				"page":  r.URL.Query().Get("page"),
			})
		case "/text":
			_, _ = w.Write([]byte("plain"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAPIRequest_SaveAndExtract(t *testing.T) {
	server := apiServer(t)
	e := newEngine(nil)
	e.Store().Set("base", server.URL, vars.Global)
	e.Store().Set("user", "alice", vars.Global)

	err := runOne(e, flow.Step{
		"type":            "api_request",
		"method":          "post",
		"url":             "{{base}}/login",
		"params":          map[string]interface{}{"page": 2},
		"json":            map[string]interface{}{"user": "{{user}}"},
		"expected_status": "200",
		"save_as":         "resp",
		"extracts": []interface{}{
			map[string]interface{}{"path": "body.token", "name": "token", "scope": "global"},
			map[string]interface{}{"path": "body.items[1].id", "name": "second_id"},
			map[string]interface{}{"path": "body.page"},
		},
	})
	if err != nil {
		t.Fatalf("api_request failed: %v", err)
	}

	if v, _ := e.Store().GetScoped("token", vars.Global); v != "abc" {
		t.Errorf("expected global token abc, got %v", v)
	}
	if v, _ := e.Store().GetScoped("second_id", vars.Local); v != 2.0 {
		t.Errorf("expected second_id 2, got %v (%T)", v, v)
	}
	resp, _ := e.Store().GetScoped("resp", vars.Local)
	m, ok := resp.(map[string]interface{})
	if !ok || m["status_code"] != 200 {
		t.Fatalf("unexpected saved response %v", resp)
	}
	if body := m["body"].(map[string]interface{}); body["page"] != "2" {
		t.Errorf("query param not sent, body=%v", body)
	}
}

func TestAPIRequest_TextBody(t *testing.T) {
	server := apiServer(t)
	e := newEngine(nil)
	err := runOne(e, flow.Step{"type": "api_request", "url": server.URL + "/text", "save_as": "r", "scope": "outputs"})
	if err != nil {
		t.Fatal(err)
	}
	r, _ := outputs(e, "r").(map[string]interface{})
	if r["body"] != "plain" {
		t.Errorf("expected text body, got %v", r["body"])
	}
}

func TestAPIRequest_Errors(t *testing.T) {
	server := apiServer(t)

	tests := []struct {
		name     string
		step     flow.Step
		category core.ErrorCategory
	}{
		{
			name:     "status mismatch",
			step:     flow.Step{"url": server.URL + "/missing", "expected_status": 200},
			category: core.ErrCategoryAssertion,
		},
		{
			name:     "missing url",
			step:     flow.Step{"method": "GET"},
			category: core.ErrCategoryConfig,
		},
		{
			name:     "bad response type",
			step:     flow.Step{"url": server.URL + "/text", "response_type": "xml"},
			category: core.ErrCategoryConfig,
		},
		{
			name: "extract missing path",
			step: flow.Step{"url": server.URL + "/text", "extracts": []interface{}{
				map[string]interface{}{"path": "body.nope", "name": "x"},
			}},
			category: core.ErrCategoryResolution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(nil)
			tt.step["type"] = "api_request"
			err := runOne(e, tt.step)
			if core.CategoryOf(err) != tt.category {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestAPIRequest_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	e := newEngine(nil)
	if err := runOne(e, flow.Step{"type": "api_request", "url": url, "timeout": 1}); err == nil {
		t.Error("expected transport error")
	}
}
