package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tactical/internal/logging"
	"tactical/internal/query"
)

// toolRequest/toolResponse mirror the JSON-RPC 2.0 request/response shape the
// teacher's MCP client transport uses, reused here for the server side: one
// JSON object per line on stdin, one JSON object per line on stdout.
type toolRequest struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type toolResponse struct {
	ID     int         `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search/timeline/context/recall as stdio JSON-RPC tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		svc := buildQueryService(s, buildOrchestrator(s))
		return runStdioLoop(cmd.Context(), svc)
	},
}

func runStdioLoop(ctx context.Context, svc *query.Service) error {
	log := logging.Get(logging.CategoryQuery)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req toolRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("failed to parse request: %v", err)
			continue
		}

		resp := dispatch(ctx, svc, req)
		if err := encoder.Encode(resp); err != nil {
			log.Warn("failed to write response: %v", err)
		}
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, svc *query.Service, req toolRequest) toolResponse {
	var params map[string]interface{}
	_ = json.Unmarshal(req.Params, &params)

	switch req.Method {
	case "search":
		q, _ := params["query"].(string)
		project, _ := params["project"].(string)
		limit := 20
		if l, ok := params["limit"].(float64); ok {
			limit = int(l)
		}
		after, _ := query.ParseDateFilter(stringParam(params, "after"))
		results, err := svc.Search(ctx, q, limit, project, after)
		if err != nil {
			return toolResponse{ID: req.ID, Error: err.Error()}
		}
		return toolResponse{ID: req.ID, Result: results}

	case "timeline":
		project, _ := params["project"].(string)
		limit := 20
		if l, ok := params["limit"].(float64); ok {
			limit = int(l)
		}
		after, _ := query.ParseDateFilter(stringParam(params, "after"))
		before, _ := query.ParseDateFilter(stringParam(params, "before"))
		entries, err := svc.Timeline(ctx, project, after, before, limit)
		if err != nil {
			return toolResponse{ID: req.ID, Error: err.Error()}
		}
		return toolResponse{ID: req.ID, Result: entries}

	case "context":
		project, _ := params["project"].(string)
		ctxResult, err := svc.ProjectContext(ctx, project)
		if err != nil {
			return toolResponse{ID: req.ID, Error: err.Error()}
		}
		return toolResponse{ID: req.ID, Result: ctxResult}

	case "recall":
		sessionID, _ := params["session_id"].(string)
		recalled, err := svc.RecallSession(ctx, sessionID)
		if err != nil {
			return toolResponse{ID: req.ID, Error: err.Error()}
		}
		return toolResponse{ID: req.ID, Result: recalled}

	default:
		return toolResponse{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func stringParam(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}
