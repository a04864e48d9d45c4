// Package lsp serves class file diagnostics over the language server
// protocol. Opening or saving a .class file parses and verifies it and
// publishes every failure as a diagnostic on the first line.
package lsp

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/dhamidi/jcheck/verifier"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
)

const lsName = "jcheck"

var log = commonlog.GetLogger("jcheck.lsp")

type Server struct {
	handler protocol.Handler
	server  *server.Server
	version string
	parser  *classfile.Parser
	opts    []classfile.Option
}

// NewServer returns a server parsing with opts. Symbols are shared by
// every file the server sees.
func NewServer(version string, opts ...classfile.Option) *Server {
	ls := &Server{
		version: version,
		parser:  classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable()),
		opts:    opts,
	}

	ls.handler = protocol.Handler{
		Initialize:           ls.initialize,
		Initialized:          ls.initialized,
		Shutdown:             ls.shutdown,
		SetTrace:             ls.setTrace,
		TextDocumentDidOpen:  ls.textDocumentDidOpen,
		TextDocumentDidSave:  ls.textDocumentDidSave,
		TextDocumentDidClose: ls.textDocumentDidClose,
	}

	ls.server = server.NewServer(&ls.handler, lsName, false)

	return ls
}

func (ls *Server) RunStdio() error {
	return ls.server.RunStdio()
}

func (ls *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := ls.handler.CreateServerCapabilities()

	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    syncKindPtr(protocol.TextDocumentSyncKindNone),
		Save:      &protocol.SaveOptions{IncludeText: boolPtr(false)},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &ls.version,
		},
	}, nil
}

func (ls *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Info("client initialized")
	return nil
}

func (ls *Server) shutdown(ctx *glsp.Context) error {
	return nil
}

func (ls *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	ls.publish(ctx, params.TextDocument.URI)
	return nil
}

func (ls *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	ls.publish(ctx, params.TextDocument.URI)
	return nil
}

func (ls *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// publish reads the class file behind uri from disk; editors hand binary
// documents over as text, which cannot be trusted to round trip.
func (ls *Server) publish(ctx *glsp.Context, uri protocol.DocumentUri) {
	path, err := uriToPath(string(uri))
	if err != nil || !strings.EqualFold(filepath.Ext(path), ".class") {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warningf("cannot read %s: %s", path, err)
		return
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: ls.Diagnose(data),
	})
}

// Diagnose parses and verifies one class file. It reports a parse failure
// alone, or one diagnostic per method that fails verification. The result
// is empty, never nil, for a valid class.
func (ls *Server) Diagnose(data []byte) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	cf, err := ls.parser.Parse(data, ls.opts...)
	if err != nil {
		return append(diagnostics, diagnostic(err))
	}
	for i := range cf.Methods {
		if err := verifier.VerifyMethod(cf, &cf.Methods[i]); err != nil {
			diagnostics = append(diagnostics, diagnostic(err))
		}
	}
	log.Debugf("%s: %d diagnostics", cf.ClassName(), len(diagnostics))
	return diagnostics
}

func diagnostic(err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lsName
	d := protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: 0, Character: 0},
		},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
	if name := classfile.JavaErrorName(err); name != "" {
		d.Code = &protocol.IntegerOrString{Value: name}
	}
	return d
}

func uriToPath(uri string) (string, error) {
	if strings.HasPrefix(uri, "file://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("invalid document uri %q: %w", uri, err)
		}
		return filepath.Clean(parsed.Path), nil
	}
	return uri, nil
}

func boolPtr(b bool) *bool {
	return &b
}

func syncKindPtr(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
