package sdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/perfectpic/perfectpic/sdk/go/headers"
)

func injectTraceparent(ctx context.Context, req *http.Request) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return
	}
	flags := "00"
	if sc.IsSampled() {
		flags = "01"
	}
	req.Header.Set("Traceparent", fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), flags))
}

func injectRequestID(req *http.Request) {
	if req.Header.Get(headers.RequestID) != "" {
		return
	}
	req.Header.Set(headers.RequestID, uuid.NewString())
}
