// Package apispec embeds the loyalty API contract and validates traffic
// against it.
package apispec

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var document []byte

// Document returns the raw OpenAPI document.
func Document() []byte {
	return document
}

// Operation is one method/path pair from the document.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Secured     bool
}

// Validator checks requests and responses against the embedded document.
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

var (
	loadOnce sync.Once
	loaded   *Validator
	loadErr  error
)

// Load parses and validates the embedded document once per process.
func Load() (*Validator, error) {
	loadOnce.Do(func() {
		loaded, loadErr = newValidator(document)
	})
	return loaded, loadErr
}

func newValidator(data []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &Validator{doc: doc, router: router}, nil
}

// Operations lists every operation, sorted by path then method.
func (v *Validator) Operations() []Operation {
	var ops []Operation
	for path, item := range v.doc.Paths.Map() {
		for method, op := range item.Operations() {
			secured := op.Security != nil && len(*op.Security) > 0
			ops = append(ops, Operation{
				Method:      method,
				Path:        path,
				OperationID: op.OperationID,
				Secured:     secured,
			})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

func (v *Validator) input(method, path string, body []byte) (*openapi3filter.RequestValidationInput, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	// Routing is done on the API-relative path, so the host is irrelevant.
	req, err := http.NewRequest(strings.ToUpper(method), "http://api.local"+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	route, params, err := v.router.FindRoute(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         false,
		},
	}, nil
}

// ValidateRequest checks an outgoing request body against the operation's
// schema. Authentication requirements are not checked.
func (v *Validator) ValidateRequest(ctx context.Context, method, path string, body []byte) error {
	input, err := v.input(method, path, body)
	if err != nil {
		return err
	}
	return openapi3filter.ValidateRequest(ctx, input)
}

// ValidateResponse checks a response against the operation's declared
// responses. Status codes the document does not list are accepted.
func (v *Validator) ValidateResponse(ctx context.Context, method, path string, status int, header http.Header, body []byte) error {
	input, err := v.input(method, path, nil)
	if err != nil {
		return err
	}
	if header == nil {
		header = http.Header{}
	}
	resp := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 status,
		Header:                 header,
		Options:                input.Options,
	}
	resp.SetBodyBytes(body)
	return openapi3filter.ValidateResponse(ctx, resp)
}
