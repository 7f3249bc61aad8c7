package control

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/famish99/jackbridge/internal/bridge"
	"github.com/famish99/jackbridge/internal/midiq"
	"github.com/famish99/jackbridge/internal/ring"
)

type endpoint struct {
	instance int
	name     string
	client   *bridge.Client
	driver   *bridge.Driver
}

func (e endpoint) role() string {
	if e.driver != nil {
		return "driver"
	}
	return "client"
}

// endpoints returns the endpoints selected by an optional instance argument
func (s *Server) endpoints(command string, args []string) ([]endpoint, string) {
	var all []endpoint
	for _, c := range s.bridges.Clients() {
		all = append(all, endpoint{instance: c.Instance(), name: c.Name(), client: c})
	}
	for _, d := range s.bridges.Drivers() {
		all = append(all, endpoint{instance: d.Instance(), name: d.Name(), driver: d})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].instance < all[j].instance })

	if len(args) == 0 {
		return all, ""
	}
	if len(args) > 1 {
		return nil, ack(ackArg, command, "too many arguments")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, ack(ackArg, command, fmt.Sprintf("need an integer, got %q", args[0]))
	}
	var sel []endpoint
	for _, e := range all {
		if e.instance == n {
			sel = append(sel, e)
		}
	}
	if len(sel) == 0 {
		return nil, ack(ackNoExist, command, fmt.Sprintf("no such instance: %d", n))
	}
	return sel, ""
}

// cmdInstances handles the 'instances' command
func (s *Server) cmdInstances(args []string) string {
	eps, errResp := s.endpoints("instances", args)
	if errResp != "" {
		return errResp
	}
	var response strings.Builder
	for _, e := range eps {
		response.WriteString(fmt.Sprintf("instance: %d\n", e.instance))
		response.WriteString(fmt.Sprintf("name: %s\n", e.name))
		response.WriteString(fmt.Sprintf("role: %s\n", e.role()))
	}
	response.WriteString("OK\n")
	return response.String()
}

// cmdStatus handles the 'status' command
func (s *Server) cmdStatus(args []string) string {
	eps, errResp := s.endpoints("status", args)
	if errResp != "" {
		return errResp
	}
	var status strings.Builder
	for _, e := range eps {
		status.WriteString(fmt.Sprintf("instance: %d\n", e.instance))
		status.WriteString(fmt.Sprintf("role: %s\n", e.role()))
		if e.client != nil {
			st := e.client.Stats()
			status.WriteString(fmt.Sprintf("state: %s\n", e.client.Status()))
			status.WriteString(fmt.Sprintf("session: %s\n", st.Session))
			status.WriteString(fmt.Sprintf("seed: %d\n", st.Seed))
			status.WriteString(fmt.Sprintf("position: %d\n", st.Position))
			status.WriteString(fmt.Sprintf("cycles: %d\n", st.Cycles))
			status.WriteString(fmt.Sprintf("block_frames: %d\n", st.BlockFrames))
		} else {
			st := e.driver.Stats()
			status.WriteString(fmt.Sprintf("state: %s\n", st.Status))
			status.WriteString(fmt.Sprintf("running: %d\n", boolInt(st.Running)))
			status.WriteString(fmt.Sprintf("cycles: %d\n", st.Cycles))
			status.WriteString(fmt.Sprintf("start_failures: %d\n", st.StartFailures))
			status.WriteString(fmt.Sprintf("stale_anchors: %d\n", st.StaleAnchors))
		}
	}
	status.WriteString("OK\n")
	return status.String()
}

// cmdStats handles the 'stats' command
func (s *Server) cmdStats(args []string) string {
	eps, errResp := s.endpoints("stats", args)
	if errResp != "" {
		return errResp
	}
	var response strings.Builder
	for _, e := range eps {
		response.WriteString(fmt.Sprintf("instance: %d\n", e.instance))
		var groups []bridge.RingStats
		if e.client != nil {
			st := e.client.Stats()
			groups = st.Groups
			writeQueues(&response, "midi_up", st.MidiUp)
			writeQueues(&response, "midi_down", st.MidiDown)
			response.WriteString(fmt.Sprintf("midi_rejected: %d\n", st.MidiRejected))
			response.WriteString(fmt.Sprintf("midi_lost: %d\n", st.MidiLost))
		} else {
			groups = e.driver.Stats().Groups
		}
		for g, gs := range groups {
			writeRing(&response, fmt.Sprintf("group%d_out", g), gs.Out)
			writeRing(&response, fmt.Sprintf("group%d_in", g), gs.In)
		}
	}
	response.WriteString("OK\n")
	return response.String()
}

// cmdCommands handles the 'commands' command
func (s *Server) cmdCommands(_ []string) string {
	var response strings.Builder
	for _, c := range []string{"close", "commands", "idle", "instances", "noidle", "ping", "stats", "status"} {
		response.WriteString(fmt.Sprintf("command: %s\n", c))
	}
	response.WriteString("OK\n")
	return response.String()
}

func writeRing(b *strings.Builder, prefix string, st ring.Stats) {
	b.WriteString(fmt.Sprintf("%s_written: %d\n", prefix, st.FramesWritten))
	b.WriteString(fmt.Sprintf("%s_read: %d\n", prefix, st.FramesRead))
	b.WriteString(fmt.Sprintf("%s_underruns: %d\n", prefix, st.Underruns))
	b.WriteString(fmt.Sprintf("%s_discards: %d\n", prefix, st.Discards))
	b.WriteString(fmt.Sprintf("%s_overruns: %d\n", prefix, st.Overruns))
}

func writeQueues(b *strings.Builder, prefix string, qs []midiq.Stats) {
	for p, q := range qs {
		b.WriteString(fmt.Sprintf("%s%d_pending: %d\n", prefix, p+1, q.Pending))
		b.WriteString(fmt.Sprintf("%s%d_dropped: %d\n", prefix, p+1, q.Dropped))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
