// Package platformtest runs an in-memory stand-in for the platform API on an
// httptest server. Plugin behaviour is supplied by the test.
package platformtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"steamchain/internal/platform"
)

// TagFunc annotates file (or, for text requests, a fresh single-block file) in place.
type TagFunc func(inst platform.PluginInstance, file *platform.File) error

// GenerateCall is what a generator plugin receives.
type GenerateCall struct {
	Text    string
	Blocks  []platform.Block
	Options map[string]any
}

type GenerateFunc func(inst platform.PluginInstance, call GenerateCall) ([]platform.Block, error)

type ImportFunc func(inst platform.PluginInstance, url string) (platform.File, error)

type taskEntry struct {
	task   platform.Task
	output any
	polls  int
}

type Server struct {
	*httptest.Server

	// PendingPolls is how many status polls a new task reports "running"
	// before it completes.
	PendingPolls int

	mu         sync.Mutex
	seq        int
	workspace  platform.Workspace
	files      map[string]*platform.File
	fileOrder  []string
	tags       map[string]*platform.Tag
	tagOrder   []string
	instances  map[string]*platform.PluginInstance
	tasks      map[string]*taskEntry
	index      map[string][]platform.IndexItem
	taggers    map[string]TagFunc
	generators map[string]GenerateFunc
	importers  map[string]ImportFunc
	calls      map[string]int
	requests   map[string][]map[string]any
	failures   map[string]*platform.APIError
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		workspace:  platform.Workspace{ID: "ws-1", Handle: "test-workspace"},
		files:      map[string]*platform.File{},
		tags:       map[string]*platform.Tag{},
		instances:  map[string]*platform.PluginInstance{},
		tasks:      map[string]*taskEntry{},
		index:      map[string][]platform.IndexItem{},
		taggers:    map[string]TagFunc{},
		generators: map[string]GenerateFunc{},
		importers:  map[string]ImportFunc{},
		calls:      map[string]int{},
		requests:   map[string][]map[string]any{},
		failures:   map[string]*platform.APIError{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Client returns a platform client pointed at the server.
func (s *Server) Client(t testing.TB) *platform.Client {
	t.Helper()
	c, err := platform.NewClient(s.URL+"/api/v1", "test-key", platform.WithHTTPClient(s.Server.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func (s *Server) OnTag(pluginHandle string, fn TagFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taggers[pluginHandle] = fn
}

func (s *Server) OnGenerate(pluginHandle string, fn GenerateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generators[pluginHandle] = fn
}

func (s *Server) OnImport(pluginHandle string, fn ImportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importers[pluginHandle] = fn
}

// Fail makes the next request to endpoint fail with the given error.
func (s *Server) Fail(endpoint string, status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = &platform.APIError{StatusCode: status, Code: code, Message: message}
}

// Calls returns how many requests endpoint received.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Requests returns the decoded bodies sent to endpoint, oldest first.
func (s *Server) Requests(endpoint string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.requests[endpoint]...)
}

// AddFile stores f as if it had been created through the API.
func (s *Server) AddFile(f platform.File) platform.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.storeFile(f)
	return cloneFile(stored)
}

// Files returns every stored file in creation order.
func (s *Server) Files() []platform.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platform.File, 0, len(s.fileOrder))
	for _, id := range s.fileOrder {
		if f, ok := s.files[id]; ok {
			out = append(out, cloneFile(f))
		}
	}
	return out
}

func (s *Server) FileByHandle(handle string) (platform.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.fileByHandle(handle); f != nil {
		return cloneFile(f), true
	}
	return platform.File{}, false
}

func (s *Server) Instance(handle string) (platform.PluginInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[handle]
	if !ok {
		return platform.PluginInstance{}, false
	}
	return *inst, true
}

// IndexItems returns what was inserted into the index instance.
func (s *Server) IndexItems(instanceHandle string) []platform.IndexItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.IndexItem(nil), s.index[instanceHandle]...)
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[endpoint]++
	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	s.requests[endpoint] = append(s.requests[endpoint], body)

	if r.Header.Get("Authorization") != "Bearer test-key" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing api key")
		return
	}
	if f, ok := s.failures[endpoint]; ok {
		delete(s.failures, endpoint)
		writeError(w, f.StatusCode, f.Code, f.Message)
		return
	}

	switch endpoint {
	case "workspace/get":
		writeData(w, s.workspace)
	case "file/create":
		var req platform.FileRequest
		if !decode(w, raw, &req) {
			return
		}
		if req.Handle != "" && s.fileByHandle(req.Handle) != nil {
			writeError(w, http.StatusConflict, "ObjectExists", "file handle already exists: "+req.Handle)
			return
		}
		f := s.storeFile(platform.File{Handle: req.Handle, MimeType: req.MimeType, Blocks: req.Blocks, Tags: req.Tags})
		writeData(w, cloneFile(f))
	case "file/get":
		var req struct {
			ID     string `json:"id"`
			Handle string `json:"handle"`
		}
		if !decode(w, raw, &req) {
			return
		}
		f := s.files[req.ID]
		if req.Handle != "" {
			f = s.fileByHandle(req.Handle)
		}
		if f == nil {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
			return
		}
		writeData(w, cloneFile(f))
	case "file/delete":
		var req struct {
			ID string `json:"id"`
		}
		if !decode(w, raw, &req) {
			return
		}
		if _, ok := s.files[req.ID]; !ok {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
			return
		}
		delete(s.files, req.ID)
		writeData(w, map[string]any{"id": req.ID})
	case "file/query":
		var req struct {
			Query string `json:"tagFilterQuery"`
		}
		if !decode(w, raw, &req) {
			return
		}
		kind, name := parseQuery(req.Query)
		files := []platform.File{}
		for _, id := range s.fileOrder {
			f, ok := s.files[id]
			if !ok {
				continue
			}
			for _, t := range f.Tags {
				if matches(t, kind, name) {
					files = append(files, cloneFile(f))
					break
				}
			}
		}
		writeData(w, map[string]any{"files": files})
	case "file/import":
		var req struct {
			PluginInstance string `json:"pluginInstance"`
			URL            string `json:"url"`
		}
		if !decode(w, raw, &req) {
			return
		}
		inst, ok := s.instances[req.PluginInstance]
		if !ok {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "plugin instance not found")
			return
		}
		fn := s.importers[inst.PluginHandle]
		if fn == nil {
			writeError(w, http.StatusBadRequest, "NotImplemented", "no importer for "+inst.PluginHandle)
			return
		}
		imported, err := fn(*inst, req.URL)
		if err != nil {
			s.writeTask(w, nil, err)
			return
		}
		f := s.storeFile(imported)
		s.writeTask(w, cloneFile(f), nil)
	case "block/create":
		var req struct {
			FileID string         `json:"fileId"`
			Text   string         `json:"text"`
			Tags   []platform.Tag `json:"tags"`
		}
		if !decode(w, raw, &req) {
			return
		}
		f, ok := s.files[req.FileID]
		if !ok {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
			return
		}
		b := s.newBlock(f.ID, platform.Block{Text: req.Text, Tags: req.Tags})
		f.Blocks = append(f.Blocks, b)
		writeData(w, b)
	case "tag/create":
		var t platform.Tag
		if !decode(w, raw, &t) {
			return
		}
		t.ID = s.nextID("tag")
		switch {
		case t.FileID != "":
			f, ok := s.files[t.FileID]
			if !ok {
				writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
				return
			}
			if t.BlockID != "" {
				for i := range f.Blocks {
					if f.Blocks[i].ID == t.BlockID {
						f.Blocks[i].Tags = append(f.Blocks[i].Tags, t)
					}
				}
			} else {
				f.Tags = append(f.Tags, t)
			}
		default:
			stored := t
			s.tags[t.ID] = &stored
			s.tagOrder = append(s.tagOrder, t.ID)
		}
		writeData(w, t)
	case "tag/delete":
		var req struct {
			ID string `json:"id"`
		}
		if !decode(w, raw, &req) {
			return
		}
		s.deleteTag(req.ID)
		writeData(w, map[string]any{"id": req.ID})
	case "tag/query":
		var req struct {
			Query string `json:"tagFilterQuery"`
		}
		if !decode(w, raw, &req) {
			return
		}
		kind, name := parseQuery(req.Query)
		tags := []platform.Tag{}
		for _, id := range s.tagOrder {
			if t, ok := s.tags[id]; ok && matches(*t, kind, name) {
				tags = append(tags, *t)
			}
		}
		writeData(w, map[string]any{"tags": tags})
	case "plugin/instance/create":
		var req platform.PluginRequest
		if !decode(w, raw, &req) {
			return
		}
		inst, ok := s.usePlugin(req)
		if !ok {
			writeError(w, http.StatusConflict, "ObjectExists", "plugin instance handle already exists: "+req.InstanceHandle)
			return
		}
		writeData(w, *inst)
	case "plugin/instance/tag":
		s.handleTag(w, raw)
	case "plugin/instance/generate":
		s.handleGenerate(w, raw)
	case "plugin/instance/embeddingIndex/insert":
		var req struct {
			PluginInstance string               `json:"pluginInstance"`
			Items          []platform.IndexItem `json:"items"`
		}
		if !decode(w, raw, &req) {
			return
		}
		s.index[req.PluginInstance] = append(s.index[req.PluginInstance], req.Items...)
		writeData(w, map[string]any{"count": len(req.Items)})
	case "plugin/instance/embeddingIndex/search":
		var req struct {
			PluginInstance string `json:"pluginInstance"`
			Query          string `json:"query"`
			K              int    `json:"k"`
		}
		if !decode(w, raw, &req) {
			return
		}
		s.writeTask(w, platform.SearchOutput{Items: search(s.index[req.PluginInstance], req.Query, req.K)}, nil)
	case "task/status":
		var req struct {
			TaskID string `json:"taskId"`
		}
		if !decode(w, raw, &req) {
			return
		}
		entry, ok := s.tasks[req.TaskID]
		if !ok {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "task not found")
			return
		}
		if entry.task.State == platform.TaskRunning {
			entry.polls--
			if entry.polls <= 0 {
				entry.task.State = platform.TaskSucceeded
			}
		}
		writeTaskEntry(w, entry)
	default:
		writeError(w, http.StatusNotFound, "UnknownEndpoint", endpoint)
	}
}

func (s *Server) handleTag(w http.ResponseWriter, raw []byte) {
	var req struct {
		PluginInstance string `json:"pluginInstance"`
		File           *struct {
			ID string `json:"id"`
		} `json:"file"`
		Text string `json:"text"`
	}
	if !decode(w, raw, &req) {
		return
	}
	inst, ok := s.instances[req.PluginInstance]
	if !ok {
		writeError(w, http.StatusNotFound, "ObjectNotFound", "plugin instance not found")
		return
	}
	var f *platform.File
	if req.File != nil {
		f = s.files[req.File.ID]
		if f == nil {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
			return
		}
	} else {
		tmp := platform.File{ID: s.nextID("file"), Blocks: []platform.Block{{Text: req.Text}}}
		tmp.Blocks[0].ID = s.nextID("block")
		f = &tmp
	}
	fn := s.taggers[inst.PluginHandle]
	if fn == nil {
		s.writeTask(w, nil, fmt.Errorf("no tagger for %s", inst.PluginHandle))
		return
	}
	if err := fn(*inst, f); err != nil {
		s.writeTask(w, nil, err)
		return
	}
	s.writeTask(w, platform.TagOutput{File: cloneFile(f)}, nil)
}

func (s *Server) handleGenerate(w http.ResponseWriter, raw []byte) {
	var req struct {
		PluginInstance string         `json:"pluginInstance"`
		Text           string         `json:"text"`
		InputFileID    string         `json:"inputFileId"`
		Options        map[string]any `json:"options"`
	}
	if !decode(w, raw, &req) {
		return
	}
	inst, ok := s.instances[req.PluginInstance]
	if !ok {
		writeError(w, http.StatusNotFound, "ObjectNotFound", "plugin instance not found")
		return
	}
	call := GenerateCall{Text: req.Text, Options: req.Options}
	if req.InputFileID != "" {
		f, ok := s.files[req.InputFileID]
		if !ok {
			writeError(w, http.StatusNotFound, "ObjectNotFound", "file not found")
			return
		}
		call.Blocks = cloneFile(f).Blocks
	}
	fn := s.generators[inst.PluginHandle]
	if fn == nil {
		s.writeTask(w, nil, fmt.Errorf("no generator for %s", inst.PluginHandle))
		return
	}
	blocks, err := fn(*inst, call)
	if err != nil {
		s.writeTask(w, nil, err)
		return
	}
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = s.nextID("block")
		}
	}
	s.writeTask(w, platform.GenerateOutput{Blocks: blocks}, nil)
}

// usePlugin reports false when the handle is taken and the request does not
// allow fetching the existing instance.
func (s *Server) usePlugin(req platform.PluginRequest) (*platform.PluginInstance, bool) {
	if req.InstanceHandle != "" {
		if inst, ok := s.instances[req.InstanceHandle]; ok {
			return inst, req.FetchIfExists
		}
	} else if req.FetchIfExists {
		for _, inst := range s.instances {
			if inst.PluginHandle == req.PluginHandle && reflect.DeepEqual(normalize(inst.Config), normalize(req.Config)) {
				return inst, true
			}
		}
	}
	handle := req.InstanceHandle
	if handle == "" {
		handle = s.nextID(req.PluginHandle)
	}
	inst := &platform.PluginInstance{
		ID:           s.nextID("instance"),
		Handle:       handle,
		PluginHandle: req.PluginHandle,
		Config:       req.Config,
	}
	s.instances[handle] = inst
	return inst, true
}

func (s *Server) storeFile(f platform.File) *platform.File {
	stored := cloneFile(&f)
	stored.ID = s.nextID("file")
	if stored.MimeType == "" {
		stored.MimeType = platform.MimeText
	}
	for i := range stored.Tags {
		stored.Tags[i].ID = s.nextID("tag")
		stored.Tags[i].FileID = stored.ID
	}
	for i := range stored.Blocks {
		stored.Blocks[i] = s.newBlock(stored.ID, stored.Blocks[i])
	}
	s.files[stored.ID] = &stored
	s.fileOrder = append(s.fileOrder, stored.ID)
	return &stored
}

func (s *Server) newBlock(fileID string, b platform.Block) platform.Block {
	b.ID = s.nextID("block")
	b.FileID = fileID
	for i := range b.Tags {
		b.Tags[i].ID = s.nextID("tag")
		b.Tags[i].FileID = fileID
		b.Tags[i].BlockID = b.ID
	}
	return b
}

func (s *Server) fileByHandle(handle string) *platform.File {
	for _, id := range s.fileOrder {
		if f, ok := s.files[id]; ok && f.Handle == handle {
			return f
		}
	}
	return nil
}

func (s *Server) deleteTag(id string) {
	if _, ok := s.tags[id]; ok {
		delete(s.tags, id)
		return
	}
	for _, f := range s.files {
		for i, t := range f.Tags {
			if t.ID == id {
				f.Tags = append(f.Tags[:i], f.Tags[i+1:]...)
				return
			}
		}
		for bi := range f.Blocks {
			for i, t := range f.Blocks[bi].Tags {
				if t.ID == id {
					f.Blocks[bi].Tags = append(f.Blocks[bi].Tags[:i], f.Blocks[bi].Tags[i+1:]...)
					return
				}
			}
		}
	}
}

func (s *Server) writeTask(w http.ResponseWriter, output any, failure error) {
	entry := &taskEntry{task: platform.Task{ID: s.nextID("task")}, output: output}
	switch {
	case failure != nil:
		entry.task.State = platform.TaskFailed
		entry.task.StatusMessage = failure.Error()
	case s.PendingPolls > 0:
		entry.task.State = platform.TaskRunning
		entry.polls = s.PendingPolls
	default:
		entry.task.State = platform.TaskSucceeded
	}
	s.tasks[entry.task.ID] = entry
	writeTaskEntry(w, entry)
}

func writeTaskEntry(w http.ResponseWriter, entry *taskEntry) {
	resp := map[string]any{"status": entry.task}
	if entry.task.State == platform.TaskSucceeded && entry.output != nil {
		resp["data"] = entry.output
	}
	writeJSON(w, http.StatusOK, resp)
}

var queryTerm = regexp.MustCompile(`(kind|name) ("(?:[^"\\]|\\.)*")`)

func parseQuery(q string) (kind, name string) {
	for _, m := range queryTerm.FindAllStringSubmatch(q, -1) {
		v, err := strconv.Unquote(m[2])
		if err != nil {
			continue
		}
		if m[1] == "kind" {
			kind = v
		} else {
			name = v
		}
	}
	return kind, name
}

func matches(t platform.Tag, kind, name string) bool {
	if kind != "" && t.Kind != kind {
		return false
	}
	if name != "" && t.Name != name {
		return false
	}
	return kind != "" || name != ""
}

func search(items []platform.IndexItem, query string, k int) []platform.SearchItem {
	words := strings.Fields(strings.ToLower(query))
	out := make([]platform.SearchItem, 0, len(items))
	for _, item := range items {
		text := strings.ToLower(item.Text)
		score := 0.0
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
		}
		if len(words) > 0 {
			score /= float64(len(words))
		}
		out = append(out, platform.SearchItem{
			Tag:   platform.Tag{Kind: "embedding", Text: item.Text, Value: item.Value},
			Score: score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func cloneFile(f *platform.File) platform.File {
	b, _ := json.Marshal(f)
	var out platform.File
	_ = json.Unmarshal(b, &out)
	return out
}

func normalize(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	b, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

func decode(w http.ResponseWriter, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": code, "message": message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
