package jsengine

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/apiclient"
)

// httpModule returns the http object with get, post, put, delete and request.
// Calls are synchronous and go through the shared api client.
func (e *Engine) httpModule() *goja.Object {
	obj := e.runtime.NewObject()

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		m := method
		name := map[string]string{"GET": "get", "POST": "post", "PUT": "put", "PATCH": "patch", "DELETE": "delete"}[m]
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			return e.doHTTPRequest(m, call.Arguments)
		}); err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("failed to set http.%s: %v", name, err)))
		}
	}

	// http.request(method, url, [options])
	if err := obj.Set("request", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("http.request requires method and url"))
		}
		return e.doHTTPRequest(call.Arguments[0].String(), call.Arguments[1:])
	}); err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to set http.request: %v", err)))
	}

	return obj
}

// doHTTPRequest performs a request. Options: headers, params, body (object
// sent as JSON, string sent raw), timeout in milliseconds.
// The result is {status, ok, headers, body}; body is decoded JSON when the
// response declares a JSON content type.
func (e *Engine) doHTTPRequest(method string, args []goja.Value) goja.Value {
	if len(args) < 1 {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s requires url", method)))
	}

	req := apiclient.Request{
		Method:  method,
		URL:     args[0].String(),
		Headers: map[string]string{},
		Params:  map[string]string{},
	}

	if len(args) > 1 && !goja.IsUndefined(args[1]) && !goja.IsNull(args[1]) {
		if opts, ok := args[1].Export().(map[string]interface{}); ok {
			if h, ok := opts["headers"].(map[string]interface{}); ok {
				for k, v := range h {
					req.Headers[k] = fmt.Sprint(v)
				}
			}
			if p, ok := opts["params"].(map[string]interface{}); ok {
				for k, v := range p {
					req.Params[k] = fmt.Sprint(v)
				}
			}
			switch b := opts["body"].(type) {
			case map[string]interface{}, []interface{}:
				req.JSON = b
			case string:
				req.Data = b
			}
			switch t := opts["timeout"].(type) {
			case int64:
				req.Timeout = time.Duration(t) * time.Millisecond
			case float64:
				req.Timeout = time.Duration(t * float64(time.Millisecond))
			}
		}
	}

	resp, err := e.http.Do(context.Background(), req)
	if err != nil {
		panic(e.runtime.NewGoError(err))
	}

	obj := e.runtime.NewObject()
	_ = obj.Set("status", resp.StatusCode)
	_ = obj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = obj.Set("headers", resp.Headers)
	_ = obj.Set("body", resp.Body)
	return obj
}
