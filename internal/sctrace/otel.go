// Package sctrace wraps the OpenTelemetry trace API
// with the attribute helpers that shardcast spans use,
// so that other packages only need to reference sctrace.
package sctrace

import (
	"fmt"
	"net"

	"github.com/gordian-engine/shardcast/scunit"
	otelattr "go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	otpnoop "go.opentelemetry.io/otel/trace/noop"
)

type TracerProvider = oteltrace.TracerProvider

type Tracer = oteltrace.Tracer

type Span = oteltrace.Span

type KeyValueAttr = otelattr.KeyValue

// InstrumentationName is the tracer name used by shardcast packages.
const InstrumentationName = "github.com/gordian-engine/shardcast"

// NopTracerProvider returns the otel no-op tracer provider.
// This is intended to use as a fallback when a nil tracer provider is given.
func NopTracerProvider() TracerProvider {
	return otpnoop.NewTracerProvider()
}

// TracerFrom returns the shardcast tracer from tp,
// or from the no-op provider if tp is nil.
func TracerFrom(tp TracerProvider) Tracer {
	if tp == nil {
		tp = NopTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// WithAttributes is an alias to [oteltrace.WithAttributes]
// to allow consumers to only reference the sctrace package.
func WithAttributes(attrs ...KeyValueAttr) oteltrace.SpanStartEventOption {
	return oteltrace.WithAttributes(attrs...)
}

// SpanError sets the given span to error status,
// with detail from err.Error().
func SpanError(span Span, err error) {
	span.SetStatus(otelcodes.Error, err.Error())
}

// ErrorAttr returns an attribute with the key "err"
// and the lazily evaluated value of err's Error() method.
func ErrorAttr(err error) KeyValueAttr {
	return otelattr.Stringer("err", errStringer{err: err})
}

type errStringer struct {
	err error
}

func (e errStringer) String() string {
	return e.err.Error()
}

// LazyHexAttr returns an attribute that uses fmt.Sprintf("%x", val)
// but only evaluates the Sprintf call if the span is sampled.
func LazyHexAttr(key string, val any) KeyValueAttr {
	return otelattr.Stringer(key, lazyHex{val: val})
}

type lazyHex struct {
	val any
}

func (h lazyHex) String() string {
	return fmt.Sprintf("%x", h.val)
}

type RemoteAddr interface {
	RemoteAddr() net.Addr
}

func RemoteAddrAttr(ra RemoteAddr) KeyValueAttr {
	return otelattr.Stringer("remote", lazyRemoteAddr{a: ra.RemoteAddr()})
}

type lazyRemoteAddr struct {
	a net.Addr
}

func (lra lazyRemoteAddr) String() string {
	if lra.a == nil {
		return "<nil>"
	}
	return lra.a.String()
}

// MessageKeyAttrs returns the channel, publisher, and root attributes for k.
func MessageKeyAttrs(k scunit.MessageKey) []KeyValueAttr {
	return []KeyValueAttr{
		otelattr.String("shardcast.channel", string(k.Channel)),
		otelattr.String("shardcast.publisher", string(k.Publisher)),
		LazyHexAttr("shardcast.root", k.Root[:]),
	}
}

func ShardIndexAttr(idx uint16) KeyValueAttr {
	return otelattr.Int("shardcast.shard.index", int(idx))
}

func PayloadSizeAttr(n int) KeyValueAttr {
	return otelattr.Int("shardcast.payload.size", n)
}
