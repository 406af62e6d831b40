package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Command is a remote operation on the sweeper.
type Command string

const (
	CommandStart       Command = "start"
	CommandStop        Command = "stop"
	CommandSingle      Command = "single"
	CommandPowerDown   Command = "powerdown"
	CommandTemperature Command = "temperature"
)

var errInvalidBody = errors.New("invalid request body")

// SingleRequest is the body of the single command.
type SingleRequest struct {
	Frequency float64 `json:"frequency"`
}

// CommandResponse is returned by every command.
type CommandResponse struct {
	Command     Command             `json:"command"`
	Running     bool                `json:"running"`
	Adjustments []ad5933.Adjustment `json:"adjustments,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

type commandHandler func(ctx context.Context, s *Server, body []byte) (*CommandResponse, error)

var commandHandlers = map[Command]commandHandler{
	CommandStart:       startCommand,
	CommandStop:        stopCommand,
	CommandSingle:      singleCommand,
	CommandPowerDown:   powerDownCommand,
	CommandTemperature: temperatureCommand,
}

// ParseCommand resolves a command name.
func ParseCommand(name string) (Command, bool) {
	c := Command(name)
	_, ok := commandHandlers[c]
	return c, ok
}

// Commands returns every known command in lexical order.
func Commands() []Command {
	out := make([]Command, 0, len(commandHandlers))
	for c := range commandHandlers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})
	return out
}

func startCommand(_ context.Context, s *Server, _ []byte) (*CommandResponse, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	return &CommandResponse{Command: CommandStart, Running: true}, nil
}

func stopCommand(_ context.Context, s *Server, _ []byte) (*CommandResponse, error) {
	if !s.stop() {
		return nil, ad5933.ErrNotRunning
	}
	return &CommandResponse{Command: CommandStop}, nil
}

func singleCommand(_ context.Context, s *Server, body []byte) (*CommandResponse, error) {
	var req SingleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if s.isRunning() {
		return nil, ad5933.ErrSweepInProgress
	}

	adjustments, err := s.sweeper.Device().SingleFrequency(req.Frequency)
	if err != nil {
		return nil, fmt.Errorf("programming single frequency: %w", err)
	}
	s.persistConfig()

	if err = s.start(); err != nil {
		return nil, err
	}
	return &CommandResponse{Command: CommandSingle, Running: true, Adjustments: adjustments}, nil
}

func powerDownCommand(_ context.Context, s *Server, _ []byte) (*CommandResponse, error) {
	s.stop()
	if err := s.sweeper.Device().PowerDown(); err != nil {
		return nil, fmt.Errorf("powering down: %w", err)
	}
	return &CommandResponse{Command: CommandPowerDown}, nil
}

func temperatureCommand(ctx context.Context, s *Server, _ []byte) (*CommandResponse, error) {
	t, err := s.sweeper.MeasureTemperature(ctx)
	if err != nil {
		return nil, err
	}
	return &CommandResponse{Command: CommandTemperature, Temperature: &t}, nil
}
