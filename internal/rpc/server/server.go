// Package server implements the RPC interface of spec §4.16: an HTTP
// server with three endpoint classes (/json_rpc multiplexed-by-method,
// fixed JSON endpoints, fixed .bin endpoints), grounded on teranode's own
// direct use of github.com/labstack/echo/v4
// (services/blockchain/Server.go, services/blockvalidation/Server.go,
// services/asset/http_impl/*.go) for the router and middleware idiom, and
// on GetSubtree.go's JSON/BINARY_STREAM/HEX content-negotiation pattern
// for the fixed endpoints.
//
// The server itself never implements node logic: every route is wired to
// a caller-supplied Handler (glossary "RpcHandler" — real, dummy, or a
// caching proxy all satisfy the same shape), and only enforces the three
// things spec §4.16 assigns to the interface itself: content-type
// negotiation, restricted/unrestricted gating, and translating handler
// errors into status codes.
package server

import (
	"context"

	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// MethodHandler answers one /json_rpc method. Params is the request's raw
// "params" member; the handler decodes it into its own typed Request.
// Result must be JSON-marshalable and, when the method also has a fixed
// .bin sibling, additionally implement epee.Writable.
type MethodHandler struct {
	Restricted bool
	Handle     func(ctx echo.Context, params json.RawMessage) (result interface{}, err error)
}

// FixedHandler answers a fixed JSON or .bin endpoint directly from the
// decoded request body (an empty body for a GET request such as
// /get_height). The returned value is marshaled with the endpoint's own
// codec (JSON or epee), chosen by the route it was registered under.
type FixedHandler struct {
	Restricted bool
	Handle     func(ctx echo.Context, body []byte) (result interface{}, err error)
}

// Server is one HTTP listener. Per spec §4.16, a node typically runs two:
// an unrestricted listener bound to loopback and a restricted one bound
// publicly; restrictedListener controls which this instance is.
type Server struct {
	echo               *echo.Echo
	log                ulog.Logger
	restrictedListener bool

	methods map[string]MethodHandler
	json    map[string]FixedHandler
	bin     map[string]FixedHandler
}

// New builds a Server. restrictedListener must be true for any listener
// that isn't fully trusted (spec §4.16: "on a restricted listener,
// restricted methods return a 403-equivalent error").
func New(cfg *settings.Settings, log ulog.Logger, restrictedListener bool) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.RPCMaxBodyBytes())))

	s := &Server{
		echo:               e,
		log:                log,
		restrictedListener: restrictedListener,
		methods:            make(map[string]MethodHandler),
		json:               make(map[string]FixedHandler),
		bin:                make(map[string]FixedHandler),
	}
	e.POST("/json_rpc", s.handleJSONRPC)
	return s
}

// RegisterMethod wires h under name for the /json_rpc multiplexed endpoint.
func (s *Server) RegisterMethod(name string, h MethodHandler) {
	s.methods[name] = h
}

// RegisterJSON wires h as a fixed JSON endpoint at /name (spec §4.16's
// "fixed JSON endpoints, e.g. /get_height").
func (s *Server) RegisterJSON(name string, h FixedHandler) {
	s.json[name] = h
	path := "/" + name
	s.echo.GET(path, s.handleFixedJSON(name))
	s.echo.POST(path, s.handleFixedJSON(name))
}

// RegisterBin wires h as a fixed binary endpoint at /name.bin (spec
// §4.16's "fixed binary endpoints with the .bin suffix").
func (s *Server) RegisterBin(name string, h FixedHandler) {
	s.bin[name] = h
	path := "/" + name + ".bin"
	s.echo.POST(path, s.handleFixedBin(name))
}

// Start blocks serving on addr until the listener is closed.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown gracefully stops the listener, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
