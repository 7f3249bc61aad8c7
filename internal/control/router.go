package control

import (
	"fmt"
	"strings"
)

// Error codes used in ACK responses
const (
	ackArg     = 2
	ackNoExist = 50
	ackUnknown = 5
)

func ack(code int, command, msg string) string {
	return fmt.Sprintf("ACK [%d@0] {%s} %s\n", code, command, msg)
}

// handleCommand processes a single control command
func (s *Server) handleCommand(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "OK\n"
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "ping":
		return "OK\n"

	case "instances":
		return s.cmdInstances(args)

	case "status":
		return s.cmdStatus(args)

	case "stats":
		return s.cmdStats(args)

	case "commands":
		return s.cmdCommands(args)

	default:
		return ack(ackUnknown, command, "unknown command")
	}
}
