package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"restbase/internal/cell"
	"restbase/internal/template"
)

const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

var webhookHTTPClient = &http.Client{Timeout: 30 * time.Second}

// webhookArgs is the recognized shape of a webhook's substituted argument
// document. Unknown top-level keys are ignored.
type webhookArgs struct {
	Header map[string]string `json:"header"`
	Query  map[string]any    `json:"query"`
	Body   any               `json:"body"`
}

// dispatch runs every hook of the given phase attached to the query,
// strictly in declaration order. A returning hook's failure aborts the
// pipeline with that status; any other failure is logged and swallowed.
func (h *Handler) dispatch(ctx context.Context, queryID int64, phase string, values map[string]cell.Cell) *AppError {
	hooks, err := h.webhooksForQuery(ctx, queryID)
	if err != nil {
		return mapStoreError(err)
	}

	for _, wh := range hooks {
		if wh.Action != phase {
			continue
		}

		fire, err := evaluateCondition(&wh, values)
		if err != nil {
			if wh.IsReturned {
				return WebhookFault(400, fmt.Sprintf("webhook %s condition: %v", wh.Name, err))
			}
			log.Printf("webhook %s condition: %v", wh.Name, err)
			continue
		}
		if !fire {
			continue
		}

		status, err := deliver(ctx, &wh, values)
		if err != nil {
			if wh.IsReturned {
				return WebhookFault(status, fmt.Sprintf("webhook %s: %v", wh.Name, err))
			}
			log.Printf("webhook %s: %v", wh.Name, err)
		}
	}
	return nil
}

// deliver substitutes the args template, performs the HTTP call and checks
// the outcome. The returned status is meaningful only when err is non-nil.
func deliver(ctx context.Context, wh *Webhook, values map[string]cell.Cell) (int, error) {
	doc := template.Substitute(wh.Args, values)

	var args webhookArgs
	if err := json.Unmarshal([]byte(doc), &args); err != nil {
		// A template that renders to broken JSON sends a bare call,
		// matching the permissive substitution policy.
		args = webhookArgs{}
	}

	var body io.Reader
	if args.Body != nil {
		b, err := json.Marshal(args.Body)
		if err != nil {
			return 400, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := strings.ToUpper(wh.ExecType)
	req, err := http.NewRequestWithContext(ctx, method, wh.URL, body)
	if err != nil {
		return 400, fmt.Errorf("build request: %w", err)
	}
	if args.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Delivery-Id", "wh_"+uuid.New().String())
	for k, v := range args.Header {
		req.Header.Set(k, v)
	}
	if len(args.Query) > 0 {
		// Stored URLs may carry their own query string; merge rather
		// than replace it.
		qs := req.URL.Query()
		for k, v := range args.Query {
			qs.Set(k, fmt.Sprintf("%v", v))
		}
		req.URL.RawQuery = qs.Encode()
	}

	resp, err := webhookHTTPClient.Do(req)
	if err != nil {
		return 400, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// evaluateCondition runs the hook's optional expression against the
// resolved values. Empty condition always fires.
func evaluateCondition(wh *Webhook, values map[string]cell.Cell) (bool, error) {
	if wh.Condition == "" {
		return true, nil
	}

	env := make(map[string]any, len(values)+1)
	user := map[string]any{}
	for k, v := range values {
		switch k {
		case ClaimUserID:
			user["id"] = v.AsAny()
		case ClaimUserEmail:
			user["email"] = v.AsAny()
		case ClaimUserRole:
			user["role"] = v.AsAny()
		default:
			env[k] = v.AsAny()
		}
	}
	if len(user) > 0 {
		env["user"] = user
	}

	prog, err := expr.Compile(wh.Condition, expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return b, nil
}
