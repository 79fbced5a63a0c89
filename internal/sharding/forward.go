package sharding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WireMessage is a message that may cross node boundaries. Implementations
// must be JSON-encodable.
type WireMessage interface {
	WireKind() string
}

// DecoderFunc rebuilds a message from its wire body on the receiving node.
type DecoderFunc func(body json.RawMessage) (any, error)

const wireKindStop = "__stop"

type wireEnvelope struct {
	Key  string          `json:"key"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// HTTPForwarder ships wire messages to the owning node over HTTP.
type HTTPForwarder struct {
	httpClient *http.Client
	log        *zap.Logger

	mu       sync.RWMutex
	members  map[string]string // node name -> host:port
	decoders map[string]DecoderFunc
}

func NewHTTPForwarder(askTimeout time.Duration, logger *zap.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		httpClient: &http.Client{Timeout: askTimeout},
		log:        logger.Named("sharding.forward"),
		members:    make(map[string]string),
		decoders:   make(map[string]DecoderFunc),
	}
}

// SetMembers replaces the node name to address mapping.
func (f *HTTPForwarder) SetMembers(members map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = members
}

// RegisterDecoder installs the decoder for one wire kind.
func (f *HTTPForwarder) RegisterDecoder(kind string, dec DecoderFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decoders[kind] = dec
}

func (f *HTTPForwarder) addrOf(node string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	addr, ok := f.members[node]
	return addr, ok
}

func (f *HTTPForwarder) Forward(ctx context.Context, node, key string, msg any) error {
	addr, ok := f.addrOf(node)
	if !ok {
		return fmt.Errorf("unknown shard owner node %q", node)
	}
	env := wireEnvelope{Key: key}
	switch m := msg.(type) {
	case stopMsg:
		env.Kind = wireKindStop
	case WireMessage:
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode %s message: %w", m.WireKind(), err)
		}
		env.Kind = m.WireKind()
		env.Body = body
	default:
		return fmt.Errorf("message %T cannot cross node boundaries", msg)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/shard/tell", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shard owner %s replied %s", node, resp.Status)
	}
	return nil
}

// Handler serves forwarded messages by delivering them to the local proxy.
func (f *HTTPForwarder) Handler(proxy *Proxy) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/shard/tell", func(w http.ResponseWriter, r *http.Request) {
		var env wireEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if env.Kind == wireKindStop {
			if err := proxy.Stop(r.Context(), env.Key); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		f.mu.RLock()
		dec, ok := f.decoders[env.Kind]
		f.mu.RUnlock()
		if !ok {
			http.Error(w, "unknown message kind: "+env.Kind, http.StatusBadRequest)
			return
		}
		msg, err := dec(env.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := proxy.Tell(r.Context(), env.Key, msg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
