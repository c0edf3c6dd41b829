package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanKey struct{}

// queryTracer emits a db.query child span for every statement issued inside a
// traced request or service operation. Statements outside a span are ignored.
type queryTracer struct {
	maxDescriptionLen int
}

func newQueryTracer() *queryTracer {
	return &queryTracer{maxDescriptionLen: 512}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := t.compact(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.args", len(data.Args))
	if verb := statementVerb(statement); verb != "" {
		span.SetData("db.operation", verb)
	}

	return context.WithValue(span.Context(), querySpanKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(*sentry.Span)
	if !ok || span == nil {
		return
	}
	defer span.Finish()

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
		return
	}
	span.Status = sentry.SpanStatusOK
	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}
}

func (t *queryTracer) compact(statement string) string {
	compacted := strings.Join(strings.Fields(statement), " ")
	if compacted == "" {
		return "sql.query"
	}
	if t.maxDescriptionLen > 0 && len(compacted) > t.maxDescriptionLen {
		return compacted[:t.maxDescriptionLen]
	}
	return compacted
}

func statementVerb(statement string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(statement), " ")
	return strings.ToUpper(verb)
}
