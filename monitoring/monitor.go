// Package monitoring turns a running simulation into a web server that can be
// watched and controlled from a browser.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/monitoring/web"
	"github.com/sarchlab/actsim/sim"
	"github.com/sarchlab/actsim/worldhandler"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"go.uber.org/zap"
)

// Simulation is the part of the scheduler that the monitor controls.
type Simulation interface {
	SetPaused(paused bool)
	RunOnce()
	SetSpeed(speed int)
	Speed() int
	State() sim.State
}

// WorldView gives read access to the installed world.
type WorldView interface {
	Snapshot() (worldhandler.Frame, error)
	Inspect(f func(w *grid.World)) error
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	simulation      Simulation
	world           WorldView
	portNumber      int
	openBrowser     bool
	profileDuration time.Duration
	log             *zap.Logger
	resources       func() (resourceRsp, error)

	server   *http.Server
	listener net.Listener

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
	segment          *ProgressBar
	segments         int
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
		log:             zap.NewNop(),
		resources:       processResources,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in a browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger *zap.Logger) *Monitor {
	m.log = logger
	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// RegisterSimulation registers the simulation that is controlled.
func (m *Monitor) RegisterSimulation(s Simulation) {
	m.simulation = s
}

// RegisterWorld registers where the world is read from.
func (m *Monitor) RegisterWorld(w WorldView) {
	m.world = w
}

// Router returns the monitor's HTTP routes.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.continueRun)
	r.HandleFunc("/api/run_once", m.runOnce)
	r.HandleFunc("/api/speed", m.speed).Methods(http.MethodGet)
	r.HandleFunc("/api/speed/{value}", m.setSpeed).Methods(http.MethodPost)
	r.HandleFunc("/api/state", m.state)
	r.HandleFunc("/api/world", m.worldDetails)
	r.HandleFunc("/api/field/{path}", m.worldField)
	r.HandleFunc("/api/actors", m.listActors)
	r.HandleFunc("/api/actor/{id}", m.actorDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server with a custom port if wanted.
func (m *Monitor) StartServer() error {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := m.URL()
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("monitor server stopped", zap.Error(err))
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.log.Warn("cannot open browser", zap.Error(err))
		}
	}

	return nil
}

// URL returns the address of the running server.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// Shutdown stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) simulationOr503(w http.ResponseWriter) Simulation {
	if m.simulation == nil {
		http.Error(w, "No simulation", http.StatusServiceUnavailable)
	}

	return m.simulation
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	s.SetPaused(true)
	m.writeState(w, s)
}

func (m *Monitor) continueRun(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	s.SetPaused(false)
	m.writeState(w, s)
}

func (m *Monitor) runOnce(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	s.RunOnce()
	m.writeState(w, s)
}

func (m *Monitor) speed(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	fmt.Fprintf(w, "{\"speed\":%d}", s.Speed())
}

func (m *Monitor) setSpeed(w http.ResponseWriter, r *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	value, err := strconv.Atoi(mux.Vars(r)["value"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	s.SetSpeed(value)
	m.writeState(w, s)
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	m.writeState(w, s)
}

func (m *Monitor) writeState(w http.ResponseWriter, s Simulation) {
	m.writeJSON(w, s.State())
}

// writeJSON replies with v encoded as JSON.
func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	m.write(w, data)
}

// fail replies with an internal server error.
func (m *Monitor) fail(w http.ResponseWriter, err error) {
	m.log.Error("monitor request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (m *Monitor) write(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		m.log.Debug("cannot write monitor response", zap.Error(err))
	}
}

// inspectOr404 runs f on the world. It answers the request itself if the
// world is missing or busy.
func (m *Monitor) inspectOr404(
	w http.ResponseWriter,
	f func(world *grid.World),
) bool {
	if m.world == nil {
		http.Error(w, "No world", http.StatusNotFound)
		return false
	}

	found := false
	err := m.world.Inspect(func(world *grid.World) {
		found = true
		f(world)
	})

	switch {
	case errors.Is(err, worldhandler.ErrBusy):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return false
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	case !found:
		http.Error(w, "No world", http.StatusNotFound)
		return false
	}

	return true
}

func (m *Monitor) worldDetails(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	var err error
	ok := m.inspectOr404(w, func(world *grid.World) {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(world)
		serializer.SetMaxDepth(1)
		err = serializer.Serialize(buf)
	})
	if !ok {
		return
	}

	if err != nil {
		m.fail(w, err)
		return
	}

	m.write(w, buf.Bytes())
}

func (m *Monitor) worldField(w http.ResponseWriter, r *http.Request) {
	fields := strings.Split(mux.Vars(r)["path"], ".")
	buf := bytes.NewBuffer(nil)

	var fieldErr, err error
	ok := m.inspectOr404(w, func(world *grid.World) {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(world)
		serializer.SetMaxDepth(1)

		fieldErr = serializer.SetEntryPoint(fields)
		if fieldErr != nil {
			return
		}

		err = serializer.Serialize(buf)
	})
	if !ok {
		return
	}

	if fieldErr != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", fieldErr)
		return
	}

	if err != nil {
		m.fail(w, err)
		return
	}

	m.write(w, buf.Bytes())
}

func (m *Monitor) listActors(w http.ResponseWriter, _ *http.Request) {
	if m.world == nil {
		http.Error(w, "No world", http.StatusNotFound)
		return
	}

	frame, err := m.world.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	m.writeJSON(w, frame)
}

type identified interface {
	ID() string
}

func (m *Monitor) actorDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	buf := bytes.NewBuffer(nil)
	found := false

	var err error
	ok := m.inspectOr404(w, func(world *grid.World) {
		for _, a := range world.Objects() {
			if b, isID := a.(identified); isID && b.ID() == id {
				found = true

				serializer := goseth.NewSerializer()
				serializer.SetRoot(a)
				serializer.SetMaxDepth(1)
				err = serializer.Serialize(buf)

				return
			}
		}
	})
	if !ok {
		return
	}

	if !found {
		http.Error(w, "Actor not found", http.StatusNotFound)
		return
	}

	if err != nil {
		m.fail(w, err)
		return
	}

	m.write(w, buf.Bytes())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func processResources() (resourceRsp, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return resourceRsp{}, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return resourceRsp{}, err
	}

	memory, err := p.MemoryInfo()
	if err != nil {
		return resourceRsp{}, err
	}

	return resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	}, nil
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	rsp, err := m.resources()
	if err != nil {
		m.fail(w, fmt.Errorf("read process resources: %w", err))
		return
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, fmt.Errorf("parse profile: %w", err))
		return
	}

	m.writeJSON(w, prof)
}
