package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaharia-lab/f1mcp/observability"
)

const (
	// ProtocolVersion is the protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"

	defaultServerName    = "f1mcp-server"
	defaultServerVersion = "0.1.0"
)

// ServerInfo identifies the server to the client during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities declares which protocol features the server supports.
type Capabilities struct {
	Tools     struct{} `json:"tools"`
	Resources struct{} `json:"resources"`
}

// InitializeParams represents the client's initialize request.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// InitializeResult represents the server's initialize response.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ServerConfig holds all configuration for BaseServer
type ServerConfig struct {
	logger        observability.Logger
	serverName    string
	serverVersion string
	workers       int
}

// ServerConfigOption is a function that modifies ServerConfig
type ServerConfigOption func(*ServerConfig)

// UseLogger sets a custom logger
func UseLogger(logger observability.Logger) ServerConfigOption {
	return func(c *ServerConfig) {
		c.logger = logger
	}
}

// UseServerInfo sets server name and version
func UseServerInfo(name, version string) ServerConfigOption {
	return func(c *ServerConfig) {
		c.serverName = name
		c.serverVersion = version
	}
}

// UseWorkers sets the number of concurrent request workers. The default of 1
// processes requests strictly in order; larger values enable the bounded
// pool, with responses correlated by id.
func UseWorkers(n int) ServerConfigOption {
	return func(c *ServerConfig) {
		c.workers = n
	}
}

func defaultConfig() *ServerConfig {
	return &ServerConfig{
		logger:        observability.NewNullLogger(),
		serverName:    defaultServerName,
		serverVersion: defaultServerVersion,
		workers:       1,
	}
}

// BaseServer contains the transport-independent request handling: method
// routing, registries, and error translation. A transport wires the send
// callbacks and feeds it requests.
type BaseServer struct {
	ServerInfo ServerInfo

	logger    observability.Logger
	workers   int
	tools     *ToolManager
	resources *ResourceManager

	sendResp func(id *json.RawMessage, result interface{})
	sendErr  func(id *json.RawMessage, code int, message string, data interface{})
}

// NewBaseServer creates a new BaseServer instance with the given options
func NewBaseServer(opts ...ServerConfigOption) (*BaseServer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.workers)
	}

	return &BaseServer{
		ServerInfo: ServerInfo{
			Name:    cfg.serverName,
			Version: cfg.serverVersion,
		},
		logger:    cfg.logger,
		workers:   cfg.workers,
		tools:     NewToolManager(),
		resources: NewResourceManager(),
		sendResp:  func(id *json.RawMessage, result interface{}) {},
		sendErr:   func(id *json.RawMessage, code int, message string, data interface{}) {},
	}, nil
}

// AddTools registers tools. Must be called before the server starts serving.
func (s *BaseServer) AddTools(tools ...Tool) error {
	return s.tools.RegisterTools(tools...)
}

// AddResources registers resources. Must be called before the server starts serving.
func (s *BaseServer) AddResources(resources ...Resource) error {
	return s.resources.RegisterResources(resources...)
}

// handleRequest routes one request to its handler. Exactly one response is
// sent per call; panics and handler failures are converted to protocol
// errors so a single request can never terminate the serving loop.
func (s *BaseServer) handleRequest(ctx context.Context, request *Request) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"method": request.Method,
				"panic":  r,
			}).Error("Recovered panic while handling request")

			s.sendErr(request.ID, ErrorCodeInternal, fmt.Sprintf("Internal error: %v", r), nil)
		}
	}()

	s.logger.WithFields(map[string]interface{}{
		"method": request.Method,
		"id":     request.ID,
	}).Debug("Received request from client")

	if request.Method == "" {
		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params: method must be a non-empty string", nil)
		return
	}

	// Every method takes an object for params, including the ones that
	// ignore it. Reject other JSON values before routing so the check does
	// not depend on whether the handler unmarshals.
	if len(request.Params) > 0 && !isJSONObject(request.Params) {
		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params: params must be an object", nil)
		return
	}

	switch request.Method {
	case "initialize":
		s.handleInitialize(ctx, request)
	case "ping":
		s.handlePing(request)
	case "tools/list":
		s.handleToolsList(ctx, request)
	case "tools/call":
		s.handleToolsCall(ctx, request)
	case "resources/list":
		s.handleResourcesList(ctx, request)
	case "resources/read":
		s.handleResourcesRead(ctx, request)
	default:
		s.logger.WithFields(map[string]interface{}{
			"method": request.Method,
			"id":     request.ID,
		}).Warn("Method not found. Unhandled request from client")

		s.sendErr(request.ID, ErrorCodeMethodNotFound, fmt.Sprintf("Method not found: %s", request.Method), nil)
	}
}

func (s *BaseServer) handleInitialize(ctx context.Context, request *Request) {
	_, span := observability.StartSpan(ctx, "BaseServer.handleInitialize")
	defer span.End()

	var params InitializeParams
	if len(request.Params) > 0 {
		if err := json.Unmarshal(request.Params, &params); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			s.logger.WithErr(err).Error("Failed to parse initialize params")
			s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params", nil)
			return
		}
	}

	if params.ProtocolVersion != "" && params.ProtocolVersion != ProtocolVersion {
		s.logger.WithFields(map[string]interface{}{
			"clientVersion": params.ProtocolVersion,
		}).Warn("Client requested a different protocol version")
	}

	// No gating on initialize. The transport is single-client and every
	// message is self-contained, so requests arriving first are served.
	s.sendResp(request.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{},
		ServerInfo:      s.ServerInfo,
	})
}

func (s *BaseServer) handlePing(request *Request) {
	s.sendResp(request.ID, map[string]interface{}{})
}

func (s *BaseServer) handleToolsList(ctx context.Context, request *Request) {
	_, span := observability.StartSpan(ctx, "BaseServer.handleToolsList")
	defer span.End()

	result := ListToolsResult{Tools: s.tools.ListTools()}
	span.SetAttributes(attribute.Int("num_tools", len(result.Tools)))

	s.sendResp(request.ID, result)
}

func (s *BaseServer) handleToolsCall(ctx context.Context, request *Request) {
	ctx, span := observability.StartSpan(ctx, "BaseServer.handleToolsCall")
	defer span.End()

	var params CallToolParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.logger.WithErr(err).WithFields(map[string]interface{}{
			"params": string(request.Params),
		}).Error("Failed to parse call tool params")

		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params", nil)
		return
	}

	if params.Name == "" {
		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params",
			map[string]string{"field": "name", "reason": "name is required"})
		return
	}

	span.SetAttributes(attribute.String("tool", params.Name))

	result, err := s.tools.CallTool(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.logger.WithErr(err).WithFields(map[string]interface{}{
			"tool": params.Name,
		}).Error("Failed to call tool")

		protoErr := translateError(err)
		s.sendErr(request.ID, protoErr.Code, protoErr.Message, protoErr.Data)
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"tool": params.Name,
	}).Debug("Tool handler executed successfully")

	s.sendResp(request.ID, result)
}

func (s *BaseServer) handleResourcesList(ctx context.Context, request *Request) {
	_, span := observability.StartSpan(ctx, "BaseServer.handleResourcesList")
	defer span.End()

	result := ListResourcesResult{Resources: s.resources.ListResources()}
	span.SetAttributes(attribute.Int("num_resources", len(result.Resources)))

	s.sendResp(request.ID, result)
}

func (s *BaseServer) handleResourcesRead(ctx context.Context, request *Request) {
	ctx, span := observability.StartSpan(ctx, "BaseServer.handleResourcesRead")
	defer span.End()

	var params ReadResourceParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.logger.WithErr(err).WithFields(map[string]interface{}{
			"params": string(request.Params),
		}).Error("Failed to parse read resource params")

		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params", nil)
		return
	}

	if params.URI == "" {
		s.sendErr(request.ID, ErrorCodeInvalidParams, "Invalid params",
			map[string]string{"field": "uri", "reason": "uri is required"})
		return
	}

	span.SetAttributes(attribute.String("uri", params.URI))

	result, err := s.resources.ReadResource(ctx, params.URI)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.logger.WithErr(err).WithFields(map[string]interface{}{
			"uri": params.URI,
		}).Error("Failed to read resource")

		protoErr := translateError(err)
		s.sendErr(request.ID, protoErr.Code, protoErr.Message, protoErr.Data)
		return
	}

	s.sendResp(request.ID, result)
}

// handleNotification handles incoming notifications. No response is ever
// produced for a notification.
func (s *BaseServer) handleNotification(ctx context.Context, notification *Notification) {
	s.logger.WithFields(map[string]interface{}{
		"method": notification.Method,
	}).Debug("Received notification from client")

	switch notification.Method {
	case "notifications/initialized":
		s.logger.Debug("Client initialized")
	default:
		s.logger.WithFields(map[string]interface{}{
			"method": notification.Method,
		}).Warn("Unhandled notification from client")
	}
}
