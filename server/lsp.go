package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/squirrel"
	"github.com/chazu/squirrel/compiler"
	"github.com/chazu/squirrel/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "squirrel-lsp"

// LspServer bridges LSP editor features to a Squirrel VM via VMWorker.
// The VM is never handed document text to run; it only answers
// questions about the globals and modules it was created with.
type LspServer struct {
	worker *VMWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given VM.
func NewLSP(v *vm.VM) *LspServer {
	worker := NewVMWorker(v)
	s := &LspServer{
		worker:  worker,
		docs:    make(map[string]string),
		version: squirrel.VersionString,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Squirrel LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	shutdown(s.worker)
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.complete(v, text, prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	path := extractPath(text, params.Position)
	if path == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.hover(v, path)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	for _, d := range declarations(text) {
		if d.name == word {
			return []protocol.Location{{URI: uri, Range: d.rng}}, nil
		}
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	return references(uri, text, word), nil
}

// --- VM-backed logic (called on worker goroutine) ---

// complete offers members of a module for a dotted prefix such as
// "string.sp", and otherwise root table globals, names declared in the
// document and keywords.
func (s *LspServer) complete(v *vm.VM, text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	if dot := strings.LastIndexByte(prefix, '.'); dot >= 0 {
		table, ok := lookupPath(v, prefix[:dot])
		if !ok || v.TypeOf(table) != "table" {
			return nil
		}
		member := prefix[dot+1:]
		eachEntry(v, table, func(name string, val vm.Value) {
			if strings.HasPrefix(name, member) {
				add(name, completionKind(v, val), v.TypeOf(val))
			}
		})
		sortItems(items)
		return items
	}

	eachEntry(v, v.RootTable(), func(name string, val vm.Value) {
		if strings.HasPrefix(name, prefix) {
			add(name, completionKind(v, val), v.TypeOf(val))
		}
	})

	for _, d := range declarations(text) {
		if strings.HasPrefix(d.name, prefix) {
			add(d.name, d.kind, d.keyword)
		}
	}

	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			add(kw, protocol.CompletionItemKindKeyword, "keyword")
		}
	}

	sortItems(items)

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

// hover describes the global or module member named by a dotted path.
func (s *LspServer) hover(v *vm.VM, path string) *protocol.Hover {
	val, ok := lookupPath(v, path)
	if !ok {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: `%s`", path, v.TypeOf(val))
	switch v.TypeOf(val) {
	case "table":
		if n, err := v.TableLen(val); err == nil {
			fmt.Fprintf(&b, "\n\n%d entries", n)
		}
	case "integer", "float", "bool", "string":
		if str, err := v.ToString(val); err == nil {
			fmt.Fprintf(&b, "\n\n`%s`", str)
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// lookupPath resolves "a.b.c" through root table slots.
func lookupPath(v *vm.VM, path string) (vm.Value, bool) {
	cur := v.RootTable()
	for _, part := range strings.Split(path, ".") {
		if part == "" || v.TypeOf(cur) != "table" {
			return vm.Null, false
		}
		next, err := v.TableGet(cur, vm.String(part))
		if err != nil {
			return vm.Null, false
		}
		cur = next
	}
	return cur, true
}

func eachEntry(v *vm.VM, table vm.Value, fn func(string, vm.Value)) {
	_ = v.TableEach(table, func(key, val vm.Value) bool {
		if key.Kind() == vm.KindString {
			fn(key.String(), val)
		}
		return true
	})
}

func completionKind(v *vm.VM, val vm.Value) protocol.CompletionItemKind {
	switch v.TypeOf(val) {
	case "function":
		return protocol.CompletionItemKindFunction
	case "class":
		return protocol.CompletionItemKindClass
	case "table":
		return protocol.CompletionItemKindModule
	case "integer", "float", "string", "bool":
		return protocol.CompletionItemKindConstant
	}
	return protocol.CompletionItemKindVariable
}

func sortItems(items []protocol.CompletionItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
}

// --- Document scanning ---

// declaration is a name introduced by function, class or local, or by a
// newslot on a plain identifier.
type declaration struct {
	name    string
	keyword string
	kind    protocol.CompletionItemKind
	rng     protocol.Range
}

func declarations(text string) []declaration {
	toks := compiler.Tokenize(text)
	var decls []declaration
	for i, tok := range toks {
		if tok.Type != compiler.TokenIdentifier {
			continue
		}
		var keyword string
		kind := protocol.CompletionItemKindVariable
		if i > 0 {
			switch toks[i-1].Type {
			case compiler.TokenFunction:
				keyword, kind = "function", protocol.CompletionItemKindFunction
			case compiler.TokenClass:
				keyword, kind = "class", protocol.CompletionItemKindClass
			case compiler.TokenLocal:
				keyword = "local"
			}
		}
		if keyword == "" && i+1 < len(toks) && toks[i+1].Type == compiler.TokenNewSlot &&
			(i == 0 || toks[i-1].Type != compiler.TokenDot) {
			keyword = "newslot"
		}
		if keyword == "" {
			continue
		}
		decls = append(decls, declaration{name: tok.Literal, keyword: keyword, kind: kind, rng: tokenRange(tok)})
	}
	return decls
}

// references returns every identifier token spelling word.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locations []protocol.Location
	for _, tok := range compiler.Tokenize(text) {
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, protocol.Location{URI: uri, Range: tokenRange(tok)})
		}
	}
	return locations
}

func tokenRange(tok compiler.Token) protocol.Range {
	start := lspPosition(tok.Pos)
	end := start
	end.Character += protocol.UInteger(len(tok.Literal))
	return protocol.Range{Start: start, End: end}
}

func lspPosition(p compiler.Position) protocol.Position {
	var pos protocol.Position
	if p.Line > 0 {
		pos.Line = protocol.UInteger(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = protocol.UInteger(p.Column - 1)
	}
	return pos
}

// --- Diagnostics ---

// diagnose compiles text and reports the first compile error at its
// position.
func diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	_, err := compiler.Compile(text, string(uri))
	if err == nil {
		return nil
	}

	msg := err.Error()
	var rng protocol.Range
	var ce *compiler.Error
	if errors.As(err, &ce) {
		msg = ce.Msg
		rng.Start = lspPosition(ce.Pos)
		rng.End = rng.Start
		rng.End.Character++
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(uri, text)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// lineAt returns the line under pos and the cursor column clamped to it.
func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the dotted identifier fragment before the cursor
// for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isIdentRune(ch) || ch == '.' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	// Find start
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

// extractPath returns the identifier under the cursor together with the
// dotted qualifiers before it, as in "math.sqrt".
func extractPath(text string, pos protocol.Position) string {
	word := extractWord(text, pos)
	if word == "" {
		return ""
	}
	line, col, _ := lineAt(text, pos)

	wordStart := col
	for wordStart > 0 && isIdentRune(rune(line[wordStart-1])) {
		wordStart--
	}
	if wordStart == 0 || line[wordStart-1] != '.' {
		return word
	}
	start := wordStart
	for start > 0 && (isIdentRune(rune(line[start-1])) || line[start-1] == '.') {
		start--
	}
	qual := strings.Trim(line[start:wordStart], ".")
	if qual == "" {
		return word
	}
	return qual + "." + word
}

func boolPtr(b bool) *bool {
	return &b
}
