// Package gamehost is a hand-maintained client for the game-host's gRPC
// match-control surface (spec §4.2, §4.3). No .proto toolchain runs in this
// build, so the wire types and client are written by hand in the same shape
// protoc-gen-go would produce, following the thin hand-maintained client
// shim pattern used for inter-service gRPC clients elsewhere in the stack.
// Since these hand-written structs don't implement proto.Message, the
// client forces a plain JSON codec instead of gRPC's default proto codec.
package gamehost

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodec marshals call payloads as JSON. gRPC's built-in "proto" codec
// type-asserts every message to proto.Message, which StartGameRequest and
// friends don't implement; this codec lets the hand-maintained types below
// go over the wire without a .proto/protoc-gen-go toolchain.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// State is the lifecycle of a single match on the game host.
type State int32

const (
	StateUnspecified State = iota
	StateWaitingForAgents
	StateRunning
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaitingForAgents:
		return "waiting_for_agents"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// AgentEndpoint identifies one participant's reachable address, matched
// positionally with the machine.Handle the Coordinator spawned for it.
type AgentEndpoint struct {
	AgentID string
	Address string // host:port, typically PrivateIP:AGENT_GRPC_PORT
}

// MatchConfig carries the arena parameters (spec §4.3: TICK_RATE_MS,
// ARENA_WIDTH/HEIGHT) that every match is started with.
type MatchConfig struct {
	TickRateMS   int32
	ArenaWidth   int32
	ArenaHeight  int32
}

// StartGameRequest is sent once per match, after all agent machines have
// warmed up.
type StartGameRequest struct {
	MatchID string
	Agents  []AgentEndpoint
	Config  MatchConfig
}

// StartGameResponse acknowledges the host accepted the match.
type StartGameResponse struct {
	Accepted bool
	Reason   string
}

// Placement is one agent's final ranking in a finished match.
type Placement struct {
	AgentID string
	Rank    int32
	Score   float64
}

// GetStatusRequest polls a previously started match.
type GetStatusRequest struct {
	MatchID string
}

// GetStatusResponse reports the current state and, once Finished, the
// placements.
type GetStatusResponse struct {
	State      State
	Placements []Placement
	Error      string
}

// Client is the capability interface the Match Coordinator depends on.
// It is satisfied by GRPCClient.
type Client interface {
	StartGame(ctx context.Context, in *StartGameRequest, opts ...grpc.CallOption) (*StartGameResponse, error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error)
}

// GRPCClient is the real Client backed by a grpc.ClientConn dialed to a
// single game-host machine's GH_GRPC_PORT for the lifetime of one match.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a game host at addr (host:port). Every call
// made over the returned client is forced onto the JSON codec registered
// above, since the request/response types aren't proto.Message.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) StartGame(ctx context.Context, in *StartGameRequest, opts ...grpc.CallOption) (*StartGameResponse, error) {
	out := new(StartGameResponse)
	err := c.conn.Invoke(ctx, "/gamehost.GameHost/StartGame", in, out, opts...)
	return out, err
}

func (c *GRPCClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	out := new(GetStatusResponse)
	err := c.conn.Invoke(ctx, "/gamehost.GameHost/GetStatus", in, out, opts...)
	return out, err
}

// DefaultPollInterval is used by the Coordinator between GetStatus calls
// when POLL_INTERVAL_MS is unset.
const DefaultPollInterval = time.Second
