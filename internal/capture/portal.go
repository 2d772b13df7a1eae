package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"
)

// SelectSources options
const (
	sourceTypeMonitor       = 1 << 0
	cursorModeEmbedded      = 1 << 1
	persistModeUntilRevoked = 2
)

var requestCounter atomic.Uint64

// Stream is a PipeWire stream granted by the ScreenCast portal. Position
// and size are zero when the portal does not report them.
type Stream struct {
	NodeID uint32
	X, Y   int
	Width  int
	Height int
}

// Portal handles xdg-desktop-portal screen sharing via D-Bus
type Portal struct {
	conn         *dbus.Conn
	session      dbus.ObjectPath
	tokenPath    string
	restoreToken string
	mu           sync.Mutex
}

// DefaultTokenPath is where the portal restore token is kept so the share
// dialog is only shown once.
func DefaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.Getenv("HOME")
	}
	return filepath.Join(dir, "shareframe", "portal_token")
}

// NewPortal connects to the session bus. An empty tokenPath uses
// DefaultTokenPath.
func NewPortal(tokenPath string) (*Portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if tokenPath == "" {
		tokenPath = DefaultTokenPath()
	}

	p := &Portal{conn: conn, tokenPath: tokenPath}
	p.restoreToken = loadRestoreToken(tokenPath)
	return p, nil
}

// Close ends the session and the bus connection
func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != "" {
		p.conn.Object(portalService, p.session).Call(sessionIface+".Close", 0)
		p.session = ""
	}
	return p.conn.Close()
}

// StartScreenShare runs CreateSession, SelectSources and Start. The user
// may be shown a picker dialog unless a saved restore token is accepted.
func (p *Portal) StartScreenShare(ctx context.Context) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("portal")

	if err := p.conn.AddMatchSignal(
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		log.Warn().Err(err).Msg("Failed to add match rule")
	}

	results, err := p.request(ctx, "CreateSession", 30*time.Second, map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(handleToken("session")),
	})
	if err != nil {
		return Stream{}, fmt.Errorf("failed to create session: %w", err)
	}
	session, err := sessionHandle(results)
	if err != nil {
		return Stream{}, err
	}
	p.session = session
	log.Debug().Str("session", string(session)).Msg("Created portal session")

	options := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(uint32(sourceTypeMonitor)),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(uint32(cursorModeEmbedded)),
		"persist_mode": dbus.MakeVariant(uint32(persistModeUntilRevoked)),
	}
	if p.restoreToken != "" {
		options["restore_token"] = dbus.MakeVariant(p.restoreToken)
		log.Debug().Msg("Using saved restore token")
	}
	if _, err := p.request(ctx, "SelectSources", 60*time.Second, session, options); err != nil {
		return Stream{}, fmt.Errorf("failed to select sources: %w", err)
	}

	results, err = p.request(ctx, "Start", 60*time.Second, session, "", map[string]dbus.Variant{})
	if err != nil {
		return Stream{}, fmt.Errorf("failed to start session: %w", err)
	}

	if v, ok := results["restore_token"]; ok {
		if token, ok := v.Value().(string); ok && token != "" {
			p.restoreToken = token
			if err := saveRestoreToken(p.tokenPath, token); err != nil {
				log.Warn().Err(err).Msg("Failed to save restore token")
			}
		}
	}

	v, ok := results["streams"]
	if !ok {
		return Stream{}, errors.New("no streams in response")
	}
	stream, err := parseStreams(v.Value())
	if err != nil {
		return Stream{}, err
	}

	log.Info().
		Uint32("node_id", stream.NodeID).
		Int("width", stream.Width).
		Int("height", stream.Height).
		Msg("Screen sharing started")
	return stream, nil
}

// request calls a ScreenCast method and waits for the matching
// Request.Response signal. The options map, always the last argument,
// gets a fresh handle_token.
func (p *Portal) request(ctx context.Context, method string, timeout time.Duration, args ...interface{}) (map[string]dbus.Variant, error) {
	log := logger.WithComponent("portal")

	if opts, ok := args[len(args)-1].(map[string]dbus.Variant); ok {
		opts["handle_token"] = dbus.MakeVariant(handleToken(strings.ToLower(method)))
	}

	// subscribe before calling so a fast response is not missed
	signals := make(chan *dbus.Signal, 10)
	p.conn.Signal(signals)
	defer p.conn.RemoveSignal(signals)

	var requestPath dbus.ObjectPath
	obj := p.conn.Object(portalService, portalPath)
	if err := obj.CallWithContext(ctx, screenCastIface+"."+method, 0, args...).Store(&requestPath); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	log.Info().
		Str("request_path", string(requestPath)).
		Msgf("Waiting for %s response (portal dialog may appear)", method)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for %s response", method)
		case sig := <-signals:
			if sig.Path != requestPath || sig.Name != requestIface+".Response" {
				continue
			}
			return parseResponse(method, sig.Body)
		}
	}
}

func parseResponse(method string, body []interface{}) (map[string]dbus.Variant, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("invalid %s response", method)
	}
	code, ok := body[0].(uint32)
	if !ok {
		return nil, fmt.Errorf("invalid %s response code %T", method, body[0])
	}
	if code != 0 {
		return nil, fmt.Errorf("%s denied (code %d)", method, code)
	}
	results := map[string]dbus.Variant{}
	if len(body) > 1 {
		if m, ok := body[1].(map[string]dbus.Variant); ok {
			results = m
		}
	}
	return results, nil
}

func sessionHandle(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", errors.New("no session handle in response")
	}
	switch h := v.Value().(type) {
	case dbus.ObjectPath:
		return h, nil
	case string:
		return dbus.ObjectPath(h), nil
	default:
		return "", fmt.Errorf("unexpected session_handle type: %T", h)
	}
}

// parseStreams takes the first entry of the a(ua{sv}) streams result.
func parseStreams(v interface{}) (Stream, error) {
	var first []interface{}
	switch s := v.(type) {
	case [][]interface{}:
		if len(s) > 0 {
			first = s[0]
		}
	case []interface{}:
		if len(s) > 0 {
			first, _ = s[0].([]interface{})
		}
	default:
		return Stream{}, fmt.Errorf("unknown streams format %T", v)
	}
	if len(first) == 0 {
		return Stream{}, errors.New("no streams in response")
	}

	nodeID, ok := first[0].(uint32)
	if !ok {
		return Stream{}, fmt.Errorf("unexpected node id type %T", first[0])
	}
	stream := Stream{NodeID: nodeID}

	if len(first) > 1 {
		if props, ok := first[1].(map[string]dbus.Variant); ok {
			stream.X, stream.Y = intPair(props["position"])
			stream.Width, stream.Height = intPair(props["size"])
		}
	}
	return stream, nil
}

// intPair decodes an (ii) struct variant.
func intPair(v dbus.Variant) (int, int) {
	pair, ok := v.Value().([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0
	}
	a, ok1 := pair[0].(int32)
	b, ok2 := pair[1].(int32)
	if !ok1 || !ok2 {
		return 0, 0
	}
	return int(a), int(b)
}

func handleToken(prefix string) string {
	return fmt.Sprintf("shareframe_%s%d_%d", prefix, os.Getpid(), requestCounter.Add(1))
}

func loadRestoreToken(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveRestoreToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0600)
}
