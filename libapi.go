package guildrelay

import (
	runtimepkg "github.com/drblury/guildrelay/internal/runtime"
	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	"github.com/drblury/guildrelay/internal/runtime/endpoints"
	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/relaypath"
	"github.com/drblury/guildrelay/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	HTTPServer          = runtimepkg.HTTPServer
	Metrics             = runtimepkg.Metrics

	Registration = runtimepkg.Registration
	Registry     = runtimepkg.Registry
	Endpoint     = runtimepkg.Endpoint
	Path         = relaypath.Path
	Envelope     = runtimepkg.Envelope
	RequestBody  = runtimepkg.RequestBody

	Handler[T any] = handlerpkg.Handler[T]
	Request[T any] = handlerpkg.Request[T]
	RequestInfo    = handlerpkg.RequestInfo
	Response       = handlerpkg.Response
	ReplyOption    = handlerpkg.ReplyOption

	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	Middleware             = runtimepkg.Middleware
	Call                   = runtimepkg.Call
	DispatchHooks          = runtimepkg.DispatchHooks
	DispatchContext        = runtimepkg.DispatchContext

	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory
	EndpointStats   = runtimepkg.EndpointStats

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Transport       = transport.Transport
	TransportConfig = transport.Config

	EndpointDeps = endpoints.Deps

	DecodeError           = errspkg.DecodeError
	HandlerPanicError     = errspkg.HandlerPanicError
	ConfigValidationError = errspkg.ConfigValidationError
)

var (
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewService     = runtimepkg.NewService
	NewHTTPServer  = runtimepkg.NewHTTPServer
	NewMetrics     = runtimepkg.NewMetrics
	Discover       = runtimepkg.Discover
	PublishRequest = runtimepkg.PublishRequest
	ParsePath      = relaypath.Parse

	// RelayEndpoints are the built-in endpoints of a relay node.
	RelayEndpoints = endpoints.Registrations

	OK          = handlerpkg.OK
	Fail        = handlerpkg.Fail
	WithChannel = handlerpkg.WithChannel

	DefaultMiddlewares   = runtimepkg.DefaultMiddlewares
	LogCallsMiddleware   = runtimepkg.LogCallsMiddleware
	TracerMiddleware     = runtimepkg.TracerMiddleware
	MetricsMiddleware    = runtimepkg.MetricsMiddleware
	StatsMiddleware      = runtimepkg.StatsMiddleware
	TimeoutMiddleware    = runtimepkg.TimeoutMiddleware
	RecovererMiddleware  = runtimepkg.RecovererMiddleware
	HooksMiddleware      = runtimepkg.HooksMiddleware
	LoggingHooks         = runtimepkg.LoggingHooks
	AlertingHooks        = runtimepkg.AlertingHooks
	BuildTransport       = transport.Build
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger  = loggingpkg.NewZapServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrEmptyPath            = errspkg.ErrEmptyPath
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrEndpointRequired     = errspkg.ErrEndpointRequired
	ErrReplyChannelRequired = errspkg.ErrReplyChannelRequired
	ErrProcessTimeout       = errspkg.ErrProcessTimeout
	ErrHandlerPanic         = errspkg.ErrHandlerPanic
	ErrJobCancelled         = errspkg.ErrJobCancelled
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
)

// Reply channel prefix and the metadata keys stamped on bus messages.
const (
	ReplyPrefix        = handlerpkg.ReplyPrefix
	MetadataKeyChannel = handlerpkg.MetadataKeyChannel
	MetadataKeyNonce   = handlerpkg.MetadataKeyNonce
	MetadataKeyNode    = handlerpkg.MetadataKeyNode
	HealthMessage      = runtimepkg.HealthMessage
)

// JSONEndpoint registers handler on path; request data decodes into T.
func JSONEndpoint[T any](path string, handler Handler[T]) Registration {
	return runtimepkg.JSONEndpoint(path, handler)
}
