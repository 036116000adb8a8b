package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"cpad"
	iLsp "cpad/internal/lsp"
	"cpad/internal/lint"
)

type Options struct {
	DocService iLsp.DocumentServiceOptions
}

// Server is the language server for calculation documents. Unlike a proxy
// setup there is no downstream language server: resolution, lint and
// completion all come from the in-process pipeline.
type Server struct {
	conn *jsonrpc2.Conn

	docService *iLsp.DocumentService

	// tracks canceled request IDs
	cancelMap sync.Map
	// tracking for method request counts
	trackRequestCount sync.Map
}

func NewServer(options Options) (*Server, error) {
	dService, err := iLsp.NewDocumentService(options.DocService)
	if err != nil {
		return nil, err
	}

	s := &Server{
		docService: dService,
	}

	dService.SetResolvedHandler(func(uri string, res *cpad.Resolved, diags []lint.Diagnostic) {
		if err := s.publishDiagnostics(uri, res, diags); err != nil {
			slog.Error("failed to publish diagnostics", "uri", uri, "error", err)
		}
	})

	return s, nil
}

func (s *Server) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result interface{}, err error) {
	if s.conn == nil {
		s.conn = conn
	}
	slog.Info("received request", "method", req.Method, "id", req.ID)
	reqCount, _ := s.trackRequestCount.LoadOrStore(req.Method, 1)
	if count, ok := reqCount.(int); ok {
		s.trackRequestCount.Store(req.Method, count+1)
	}

	if _, ok := s.cancelMap.Load(req.ID.String()); ok {
		slog.Debug("request was canceled", "id", req.ID)
		s.cancelMap.Delete(req.ID.String())
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		slog.Info("initializing lsp server")

		var initParams lsp.InitializeParams
		if err := json.Unmarshal(*req.Params, &initParams); err != nil {
			return nil, err
		}

		syncKind := lsp.TDSKFull
		return lsp.InitializeResult{
			Capabilities: lsp.ServerCapabilities{
				TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
					Kind: &syncKind,
				},
				CompletionProvider: &lsp.CompletionOptions{
					TriggerCharacters: []string{".", "$"},
				},
				HoverProvider: true,
			},
		}, nil

	case "initialized":
		slog.Info("server initialized")
		return nil, nil

	case "shutdown":
		slog.Info("shutting down")
		s.printDebugStats()
		return nil, nil

	case "exit":
		slog.Info("exiting")
		os.Exit(0)
		return nil, nil

	case "textDocument/didOpen":
		// Resolved on open so diagnostics are shown immediately
		var params lsp.DidOpenTextDocumentParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}

		s.docService.Open(string(params.TextDocument.URI), params.TextDocument.Text, params.TextDocument.Version)
		return nil, nil

	case "textDocument/didChange":
		var params lsp.DidChangeTextDocumentParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}

		// Full sync: the last content change carries the whole document
		if len(params.ContentChanges) > 0 {
			text := params.ContentChanges[len(params.ContentChanges)-1].Text
			s.docService.Change(string(params.TextDocument.URI), text, params.TextDocument.Version)
		}
		return nil, nil

	case "textDocument/didSave":
		return nil, nil

	case "textDocument/didClose":
		var params lsp.DidCloseTextDocumentParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}

		s.docService.Close(string(params.TextDocument.URI))
		// Clear any published diagnostics for the closed document
		return nil, s.SendDiagnostics(ctx, lsp.PublishDiagnosticsParams{
			URI:         params.TextDocument.URI,
			Diagnostics: []lsp.Diagnostic{},
		})

	case "textDocument/completion":
		var params lsp.CompletionParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}

		res, ok := s.docService.Resolved(string(params.TextDocument.URI))
		if !ok {
			return lsp.CompletionList{IsIncomplete: false, Items: []lsp.CompletionItem{}}, nil
		}

		return lsp.CompletionList{
			IsIncomplete: false,
			Items:        iLsp.CompletionItems(res),
		}, nil

	case "textDocument/hover":
		var params lsp.TextDocumentPositionParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}

		return s.hover(params)

	case "$/cancelRequest":
		var params lsp.CancelParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}
		slog.Debug("canceling request", "id", params.ID)
		s.cancelMap.Store(params.ID.String(), struct{}{})
		return nil, nil

	default:
		slog.Debug("unhandled method", "method", req.Method)
		return nil, nil
	}
}

func (s *Server) hover(params lsp.TextDocumentPositionParams) (interface{}, error) {
	uri := string(params.TextDocument.URI)

	res, ok := s.docService.Resolved(uri)
	if !ok {
		return nil, nil
	}
	text, ok := s.docService.Text(uri)
	if !ok {
		return nil, nil
	}

	content, ok := iLsp.Hover(res, text, params.Position.Line, params.Position.Character)
	if !ok {
		return nil, nil
	}

	return lsp.Hover{
		Contents: []lsp.MarkedString{{Language: "cpd", Value: content}},
	}, nil
}

// SendDiagnostics pushes diagnostics for a document to the client.
func (s *Server) SendDiagnostics(ctx context.Context, params lsp.PublishDiagnosticsParams) error {
	if s.conn == nil {
		return fmt.Errorf("no client connection")
	}
	return s.conn.Notify(ctx, "textDocument/publishDiagnostics", params)
}

func (s *Server) publishDiagnostics(uri string, res *cpad.Resolved, diags []lint.Diagnostic) error {
	lspDiags := iLsp.ToLSPDiagnostics(res, diags)
	slog.Debug("publishing diagnostics", "uri", uri, "count", len(lspDiags))
	return s.SendDiagnostics(context.Background(), lsp.PublishDiagnosticsParams{
		URI:         lsp.DocumentURI(uri),
		Diagnostics: lspDiags,
	})
}

func (s *Server) printDebugStats() {
	s.trackRequestCount.Range(func(key, value interface{}) bool {
		msg := fmt.Sprintf("Method: %-30s Count: %d", key.(string), value.(int))
		slog.Debug(msg)
		return true
	})
}
