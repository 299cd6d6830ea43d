package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StdIOServer serves the protocol over a newline-delimited duplex byte
// stream, stdin/stdout in the reference deployment. With one worker it
// processes requests strictly in order; with more it runs a bounded pool
// and relies on the client correlating responses by id. Writes are
// serialized either way so response lines never interleave.
type StdIOServer struct {
	*BaseServer
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// NewStdIOServer creates a new StdIOServer.
func NewStdIOServer(baseServer *BaseServer, in io.Reader, out io.Writer) *StdIOServer {
	s := &StdIOServer{
		BaseServer: baseServer,
		in:         in,
		out:        out,
	}

	s.sendResp = s.sendResponse
	s.sendErr = s.sendError

	return s
}

// sendResponse sends a JSON-RPC success response.
func (s *StdIOServer) sendResponse(id *json.RawMessage, result interface{}) {
	s.writeMessage(Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendError sends a JSON-RPC error response.
func (s *StdIOServer) sendError(id *json.RawMessage, code int, message string, data interface{}) {
	s.writeMessage(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *StdIOServer) writeMessage(response Response) {
	jsonResponse, err := json.Marshal(response)
	if err != nil {
		s.logger.WithErr(err).Error("Failed to marshal response")

		fallback := Response{
			JSONRPC: "2.0",
			ID:      response.ID,
			Error:   &Error{Code: ErrorCodeInternal, Message: "Internal error: failed to marshal response"},
		}
		jsonResponse, _ = json.Marshal(fallback)
	}
	jsonResponse = append(jsonResponse, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.out.Write(jsonResponse); err != nil {
		s.logger.WithErr(err).Error("Failed to write response")
	}
}

// processLine handles one raw input line: parse, route, respond. Parse
// failures yield -32700 with a null id; notifications yield nothing.
func (s *StdIOServer) processLine(ctx context.Context, line []byte) {
	var request Request
	if err := json.Unmarshal(line, &request); err != nil {
		s.logger.WithErr(err).Error("Failed to unmarshal message")
		s.sendError(nil, ErrorCodeParseError, "Parse error", nil)
		return
	}

	if request.IsNotification() {
		s.handleNotification(ctx, &Notification{
			JSONRPC: request.JSONRPC,
			Method:  request.Method,
			Params:  request.Params,
		})
		return
	}

	s.handleRequest(ctx, &request)
}

// Run starts the StdIOServer, reading and processing messages until the
// input stream ends or the context is cancelled.
func (s *StdIOServer) Run(ctx context.Context) error {
	s.logger.WithFields(map[string]interface{}{
		"server":  s.ServerInfo.Name,
		"version": s.ServerInfo.Version,
		"workers": s.workers,
	}).Info("Server started")

	scanner := bufio.NewScanner(s.in)
	buffer := make([]byte, 0, 64*1024)
	scanner.Buffer(buffer, 1024*1024)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	done := make(chan error, 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				done <- ctx.Err()
				return
			default:
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil && err != io.EOF {
						done <- fmt.Errorf("scanner error: %w", err)
					} else {
						done <- nil
					}
					return
				}

				line := make([]byte, len(scanner.Bytes()))
				copy(line, scanner.Bytes())
				if len(line) == 0 {
					continue
				}

				if s.workers == 1 {
					s.processLine(groupCtx, line)
					continue
				}

				group.Go(func() error {
					s.processLine(groupCtx, line)
					return nil
				})
			}
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		s.logger.Debug("Context cancelled, StdIOServer shutting down...")
		err = ctx.Err()
	case err = <-done:
		s.logger.WithErr(err).Debug("StdIOServer input closed, shutting down")
	}

	if waitErr := group.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}

	return err
}
