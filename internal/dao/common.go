package dao

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/telemetry"
)

const tracerName = "scanhub/dao"

// defaultDBAttributes tag every storage span.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "sql"),
	attribute.String("db.orm", "gorm"),
}

type traced struct {
	db     *gorm.DB
	tracer trace.Tracer
}

func newTraced(db *gorm.DB, tracer trace.Tracer) traced {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return traced{db: db, tracer: tracer}
}

func (t traced) trace(ctx context.Context, spanName string, attrs []attribute.KeyValue, op func(ctx context.Context) error) error {
	return telemetry.ExecuteAndTrace(ctx, t.tracer, spanName, append(attrs, defaultDBAttributes...), op)
}

// storageErr maps a missing record to notFound and anything else to ErrStorage.
func storageErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, scanerrors.ErrStorage):
		return err
	default:
		return fmt.Errorf("%w: %w", scanerrors.ErrStorage, err)
	}
}
