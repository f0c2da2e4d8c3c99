// Command hfsmweb serves a read-only JSON view of one or more engines
// loaded from IR files: current state path, tick, variables, and
// possible events. It does not step the engines, so each reports its
// initial configuration.
// It carries none of the diagram-design or theming surface the
// original visualization server offered, per spec's explicit
// non-goals; it is status reporting only.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsmforge/hfsmcore/pkg/fsm"
)

// statusServer exposes a fixed set of named engines over HTTP,
// generalizing AdvancedVisualizationServer.RegisterMachine's registry
// pattern down to a read-only status endpoint.
type statusServer struct {
	port int

	mu      sync.RWMutex
	engines map[string]*fsm.Engine
}

func newStatusServer(port int) *statusServer {
	return &statusServer{port: port, engines: make(map[string]*fsm.Engine)}
}

// RegisterEngine makes engine available at /api/engines/{name}.
func (s *statusServer) RegisterEngine(name string, engine *fsm.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[name] = engine
}

func (s *statusServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/engines", s.handleEnginesList)
	mux.HandleFunc("/api/engines/", s.handleEngineStatus)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *statusServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "hfsmweb - state machine status server")
	fmt.Fprintln(w, "GET /api/engines          list registered engine names")
	fmt.Fprintln(w, "GET /api/engines/{name}    status snapshot for one engine")
}

func (s *statusServer) handleEnginesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, names)
}

func (s *statusServer) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/engines/")
	if name == "" {
		http.Error(w, "missing engine name", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	engine, ok := s.engines[name]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "engine not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("hfsmweb: encoding response: %v", err)
	}
}

func loadNamedModel(spec string) (string, *fsm.Engine, error) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("malformed -engine %q, want name=path.json", spec)
	}
	name, path := parts[0], parts[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var model *fsm.FsmModel
	if strings.HasSuffix(strings.ToLower(path), ".yaml") || strings.HasSuffix(strings.ToLower(path), ".yml") {
		model, err = fsm.DecodeModelYAML(data)
	} else {
		model, err = fsm.DecodeModelJSON(data)
	}
	if err != nil {
		return "", nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	engine, err := fsm.NewEngine(model)
	if err != nil {
		return "", nil, fmt.Errorf("building engine for %s: %w", name, err)
	}
	return name, engine, nil
}

type engineFlags []string

func (e *engineFlags) String() string { return strings.Join(*e, ",") }
func (e *engineFlags) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	port := flag.Int("port", 8090, "HTTP port to listen on")
	var engines engineFlags
	flag.Var(&engines, "engine", "name=path.json engine to register; may be repeated")
	flag.Parse()

	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			*port = v
		}
	}

	if len(engines) == 0 {
		log.Fatalf("hfsmweb: at least one -engine name=path.json is required")
	}

	server := newStatusServer(*port)
	for _, spec := range engines {
		name, engine, err := loadNamedModel(spec)
		if err != nil {
			log.Fatalf("hfsmweb: %v", err)
		}
		server.RegisterEngine(name, engine)
		log.Printf("hfsmweb: registered engine %q from %s", name, spec)
	}

	fmt.Printf("hfsmweb: serving status on http://localhost:%d\n", *port)
	fmt.Printf("hfsmweb: API: http://localhost:%d/api/engines\n", *port)
	log.Fatal(server.Start())
}
