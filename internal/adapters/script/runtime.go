package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

var requiredExports = []string{"discover", "fetchPages"}

// Runtime owns one goja VM. A VM is single-threaded, so calls are serialized.
type Runtime struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	api      *goja.Object
	manifest *Manifest
	http     adapters.Getter

	// ctx is the context of the call in progress. Guarded by mu.
	ctx context.Context
}

// NewRuntime evaluates the adapter's entry point and checks its exports.
func NewRuntime(manifest *Manifest, dir string, getter adapters.Getter) (*Runtime, error) {
	source, err := os.ReadFile(filepath.Join(dir, manifest.EntryPoint))
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter script: %w", err)
	}

	r := &Runtime{vm: goja.New(), manifest: manifest, http: getter, ctx: context.Background()}
	r.api = r.hostAPI()

	exports := r.vm.NewObject()
	r.vm.Set("exports", exports)
	// CommonJS-like wrapper so scripts can assign to exports.
	wrapped := fmt.Sprintf("(function(exports) {\n%s\n})(exports);", string(source))
	if _, err := r.vm.RunScript(manifest.EntryPoint, wrapped); err != nil {
		return nil, fmt.Errorf("failed to execute adapter script: %w", err)
	}

	for _, name := range requiredExports {
		if _, ok := goja.AssertFunction(exports.Get(name)); !ok {
			return nil, fmt.Errorf("adapter script missing required export: %s", name)
		}
	}
	return r, nil
}

// call invokes exports[fn](arg, api) and returns the exported Go value.
func (r *Runtime) call(ctx context.Context, fn, arg string) (result interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	callable, _ := goja.AssertFunction(r.vm.Get("exports").ToObject(r.vm).Get(fn))

	r.ctx = ctx
	r.vm.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() { r.vm.Interrupt(ctx.Err()) })
	defer func() {
		stop()
		r.vm.ClearInterrupt()
		r.ctx = context.Background()
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", fn, p)
		}
	}()

	val, err := callable(goja.Undefined(), r.vm.ToValue(arg), r.api)
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

func (r *Runtime) throw(format string, args ...interface{}) {
	panic(r.vm.NewGoError(fmt.Errorf(format, args...)))
}

// hostAPI builds the object passed to every exported function.
func (r *Runtime) hostAPI() *goja.Object {
	vm := r.vm
	api := vm.NewObject()

	api.Set("fetch", func(call goja.FunctionCall) goja.Value {
		body := r.fetch(call)
		return vm.ToValue(string(body))
	})

	api.Set("fetchJSON", func(call goja.FunctionCall) goja.Value {
		body := r.fetch(call)
		var data interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			r.throw("fetchJSON: %v", err)
		}
		return vm.ToValue(data)
	})

	api.Set("select", func(document, selector string) goja.Value {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
		if err != nil {
			r.throw("select: %v", err)
		}
		var elements []interface{}
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			inner, _ := s.Html()
			attrs := make(map[string]interface{})
			if len(s.Nodes) > 0 {
				for _, a := range s.Nodes[0].Attr {
					attrs[a.Key] = a.Val
				}
			}
			elements = append(elements, map[string]interface{}{
				"text":  strings.TrimSpace(s.Text()),
				"html":  inner,
				"attrs": attrs,
			})
		})
		return vm.NewArray(elements...)
	})

	api.Set("xpath", func(document, expr string) goja.Value {
		values, err := evaluateXPath(document, expr)
		if err != nil {
			r.throw("xpath: %v", err)
		}
		out := make([]interface{}, len(values))
		for i, v := range values {
			out[i] = v
		}
		return vm.NewArray(out...)
	})

	api.Set("resolve", adapters.ResolveURL)

	api.Set("chapterNumber", func(text string) goja.Value {
		if n, ok := util.ParseChapterNumber(text); ok {
			return vm.ToValue(n)
		}
		return goja.Null()
	})

	api.Set("log", func(msg string) {
		log.Printf("Script adapter [%s]: %s", r.manifest.SiteType, msg)
	})

	return api
}

// fetch reads (url, headers?) from call and downloads it with the call's context.
func (r *Runtime) fetch(call goja.FunctionCall) []byte {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) || arg.String() == "" {
		r.throw("fetch: url is required")
	}
	url := arg.String()
	headers := make(map[string]string)
	if h := call.Argument(1); !goja.IsUndefined(h) && !goja.IsNull(h) {
		if m, ok := h.Export().(map[string]interface{}); ok {
			for k, v := range m {
				headers[k] = fmt.Sprint(v)
			}
		}
	}
	body, err := r.http.GetBody(r.ctx, url, headers)
	if err != nil {
		r.throw("fetch %s: %v", url, err)
	}
	return body
}
