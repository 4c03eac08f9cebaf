package offlinecache

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageSkipWaiting asks a waiting agent version to take over immediately.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is an out-of-band control message from a client page.
type Message struct {
	Type string `json:"type"`
}

// Client is a controlled page. It is notified when a new agent version takes
// control.
type Client interface {
	ControllerChange(version string)
}

// Registration plays the host role of the agent lifecycle: it holds the
// active and the waiting agent version, the set of connected clients, and
// the promotion protocol between them.
type Registration struct {
	mu      sync.Mutex
	log     zerolog.Logger
	active  *Agent
	waiting *Agent
	clients map[string]Client
}

func NewRegistration(logger *zerolog.Logger) *Registration {
	var log zerolog.Logger
	if logger == nil {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = *logger
	}
	return &Registration{
		log:     log,
		clients: make(map[string]Client),
	}
}

// Register installs the agent version. It becomes active right away when no
// version is active yet or when the agent requested to skip waiting;
// otherwise it is parked as waiting until promoted.
func (reg *Registration) Register(ctx context.Context, a *Agent) error {
	if err := a.Install(ctx); err != nil {
		return err
	}

	reg.mu.Lock()
	reg.waiting = a
	promote := reg.active == nil || a.SkipsWaiting()
	reg.mu.Unlock()

	if promote {
		return reg.promote(ctx)
	}
	reg.log.Info().Str("version", a.Version()).Msg("Agent installed, waiting")
	return nil
}

// HandleMessage processes a control message. Unrecognized message types are
// ignored silently.
func (reg *Registration) HandleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageSkipWaiting:
		if err := reg.promote(ctx); err != nil {
			reg.log.Error().Err(err).Msg("Could not promote waiting agent")
		}
	}
}

// promote activates the waiting version and claims all connected clients.
// A no-op when nothing is waiting.
func (reg *Registration) promote(ctx context.Context) error {
	reg.mu.Lock()
	a := reg.waiting
	reg.waiting = nil
	reg.mu.Unlock()
	if a == nil {
		return nil
	}

	if err := a.Activate(ctx); err != nil {
		return err
	}

	reg.mu.Lock()
	reg.active = a
	clients := make([]Client, 0, len(reg.clients))
	for _, c := range reg.clients {
		clients = append(clients, c)
	}
	reg.mu.Unlock()

	// claim: the new version controls all open clients immediately
	for _, c := range clients {
		c.ControllerChange(a.Version())
	}
	reg.log.Info().Str("version", a.Version()).Int("clients", len(clients)).Msg("Agent active")
	return nil
}

// Active returns the agent currently handling traffic, or nil.
func (reg *Registration) Active() *Agent {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.active
}

// Waiting returns the installed but not yet activated agent, or nil.
func (reg *Registration) Waiting() *Agent {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.waiting
}

// AddClient connects a client and returns its id.
func (reg *Registration) AddClient(c Client) string {
	id := uuid.NewString()
	reg.mu.Lock()
	reg.clients[id] = c
	reg.mu.Unlock()
	return id
}

// RemoveClient disconnects the client with the given id.
func (reg *Registration) RemoveClient(id string) {
	reg.mu.Lock()
	delete(reg.clients, id)
	reg.mu.Unlock()
}

// ServeHTTP dispatches to the active agent.
func (reg *Registration) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a := reg.Active()
	if a == nil {
		http.Error(w, "No active agent", http.StatusServiceUnavailable)
		return
	}
	a.ServeHTTP(w, r)
}
