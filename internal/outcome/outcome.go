// Package outcome classifies raw review-service responses into the closed set of
// outcomes the review controller routes on.
package outcome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sprite-ai/guardrev/internal/model"
)

// Response is what the transport observed: a status code, its content type and body.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Kind enumerates outcomes.
type Kind int

const (
	KindSuccess Kind = iota
	KindUnauthorized
	KindValidationError
	KindServerError
	KindNetworkError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidationError:
		return "validation_error"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one review call. Only the fields relevant to
// Kind are set.
type Outcome struct {
	Kind     Kind
	Result   model.ReviewResult // KindSuccess
	Messages []string           // KindValidationError, one per line
	Status   int                // KindServerError, KindValidationError
	Message  string             // KindServerError, KindNetworkError
	Err      error              // KindNetworkError
}

// Terminal reports whether the outcome ends the review without a fallback result.
func (o Outcome) Terminal() bool {
	return o.Kind == KindUnauthorized || o.Kind == KindValidationError
}

// Fallback reports whether the controller should substitute the local result.
func (o Outcome) Fallback() bool {
	return o.Kind == KindServerError || o.Kind == KindNetworkError
}

// ValidationText joins validation messages one per line.
func (o Outcome) ValidationText() string {
	return strings.Join(o.Messages, "\n")
}

// Classify maps a response, or the transport error that prevented one, to an Outcome.
func Classify(resp *Response, transportErr error) Outcome {
	if transportErr != nil || resp == nil {
		msg := "no response from review service"
		if transportErr != nil {
			msg = transportErr.Error()
		}
		return Outcome{Kind: KindNetworkError, Message: msg, Err: transportErr}
	}

	switch {
	case resp.Status == 401:
		return Outcome{Kind: KindUnauthorized, Status: resp.Status}

	case resp.Status == 422:
		return Outcome{
			Kind:     KindValidationError,
			Status:   resp.Status,
			Messages: validationMessages(resp),
		}

	case resp.Status < 200 || resp.Status > 299:
		return Outcome{
			Kind:    KindServerError,
			Status:  resp.Status,
			Message: BodyText(resp),
		}
	}

	var result model.ReviewResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return Outcome{
			Kind:    KindServerError,
			Status:  resp.Status,
			Message: fmt.Sprintf("unreadable review result: %v", err),
		}
	}
	result.Normalize()
	return Outcome{Kind: KindSuccess, Status: resp.Status, Result: result}
}

func validationMessages(resp *Response) []string {
	if detail, ok := jsonDetail(resp); ok {
		return RenderDetail(detail)
	}
	return strings.Split(BodyText(resp), "\n")
}

// BodyText is a best-effort single string for an error body: the detail field of a
// JSON body, the whole JSON otherwise, or the raw text.
func BodyText(resp *Response) string {
	if detail, ok := jsonDetail(resp); ok {
		return strings.Join(RenderDetail(detail), "\n")
	}
	if isJSON(resp.ContentType) {
		var v any
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			return compactJSON(resp.Body)
		}
	}
	text := strings.TrimSpace(string(resp.Body))
	if text == "" {
		return fmt.Sprintf("Status %d", resp.Status)
	}
	return text
}

// RenderDetail turns a FastAPI-style detail value into display lines. A list of
// {loc, msg} objects renders as "loc.joined: msg"; a string is used verbatim;
// anything else is rendered as JSON.
func RenderDetail(detail json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(detail, &s); err == nil {
		return []string{s}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(detail, &items); err == nil {
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, renderItem(item))
		}
		return lines
	}

	return []string{compactJSON(detail)}
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func renderItem(raw json.RawMessage) string {
	var it detailItem
	if err := json.Unmarshal(raw, &it); err != nil || it.Msg == "" {
		return compactJSON(raw)
	}
	if len(it.Loc) == 0 {
		return it.Msg
	}
	segs := make([]string, len(it.Loc))
	for i, seg := range it.Loc {
		segs[i] = fmt.Sprint(seg)
	}
	return strings.Join(segs, ".") + ": " + it.Msg
}

func jsonDetail(resp *Response) (json.RawMessage, bool) {
	if len(resp.Body) == 0 {
		return nil, false
	}
	if resp.ContentType != "" && !isJSON(resp.ContentType) {
		return nil, false
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, false
	}
	if len(envelope.Detail) == 0 || string(envelope.Detail) == "null" {
		return nil, false
	}
	return envelope.Detail, true
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func compactJSON(raw []byte) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
