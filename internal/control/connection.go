package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
)

// Greeting is sent when a client connects
const Greeting = "OK JACKBRIDGE 1\n"

// handleConnection handles a single control client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	s.log.Debug("Control client connected", "remote", conn.RemoteAddr())

	fmt.Fprint(conn, Greeting)

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.log.Debug("Connection error", "err", err)
		}
	}()

	var currentIdle *idleConnection
	leaveIdle := func() {
		if currentIdle != nil {
			s.unregisterIdle(currentIdle)
			currentIdle = nil
		}
	}
	defer leaveIdle()

	inCommandList := false
	commandListOk := false // Track if we need list_OK after each command
	var commandListResponses strings.Builder

	for {
		// Nil channels block, so idle events are only selected while idle.
		var notify <-chan string
		var cancel <-chan struct{}
		if currentIdle != nil {
			notify, cancel = currentIdle.notify, currentIdle.cancel
		}

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				s.log.Debug("Control client disconnected", "remote", conn.RemoteAddr())
				return
			}
			line = l
		case subsystem := <-notify:
			leaveIdle()
			fmt.Fprintf(conn, "changed: %s\nOK\n", subsystem)
			continue
		case <-cancel:
			leaveIdle()
			fmt.Fprint(conn, "OK\n")
			continue
		}

		if line == "" {
			continue
		}

		// Handle command list mode
		switch line {
		case "command_list_begin":
			inCommandList = true
			commandListOk = false
			commandListResponses.Reset()
			continue
		case "command_list_ok_begin":
			inCommandList = true
			commandListOk = true
			commandListResponses.Reset()
			continue
		case "command_list_end":
			if inCommandList {
				fmt.Fprint(conn, commandListResponses.String())
				fmt.Fprint(conn, "OK\n")
				inCommandList = false
				commandListOk = false
				commandListResponses.Reset()
			}
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		if currentIdle != nil {
			// Anything received while idle ends the wait.
			leaveIdle()
			fmt.Fprint(conn, "OK\n")
			if cmd == "noidle" {
				continue
			}
		}

		var response string
		switch cmd {
		case "idle":
			idle := newIdleConnection(parts[1:])
			currentIdle = idle
			s.registerIdle(idle)
			continue
		case "noidle":
			response = "OK\n"
		case "close":
			return
		default:
			response = s.handleCommand(line)
		}

		if inCommandList {
			// Buffer response (strip the final OK)
			response = strings.TrimSuffix(response, "OK\n")
			commandListResponses.WriteString(response)

			// For command_list_ok_begin, add list_OK after each command
			if commandListOk {
				commandListResponses.WriteString("list_OK\n")
			}
		} else if _, err := fmt.Fprint(conn, response); err != nil {
			return
		}
	}
}
