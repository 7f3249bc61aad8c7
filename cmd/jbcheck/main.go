// Command jbcheck prints the registers of a bridge's shared memory segment.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/famish99/jackbridge/internal/config"
	"github.com/famish99/jackbridge/internal/segment"
	"github.com/famish99/jackbridge/internal/status"
)

var (
	configPath = flag.String("config", "./jackbridge.yaml", "Path to configuration file")
	instance   = flag.Int("instance", 0, "Bridge instance to inspect")
	format     = flag.String("format", "", "Output format: text or msgpack (default: text on a terminal, msgpack otherwise)")
	watch      = flag.Duration("watch", 0, "Repeat every interval until interrupted")
	decode     = flag.Bool("decode", false, "Read msgpack snapshots from stdin and print them as text")
)

func main() {
	flag.Parse()

	if *decode {
		if err := decodeStream(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("Failed to decode: %v", err)
		}
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	seg, err := segment.Attach(cfg.ShmOptions(*instance))
	if err != nil {
		log.Fatalf("Failed to attach: %v", err)
	}
	defer seg.Close()

	out := *format
	if out == "" {
		out = "msgpack"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			out = "text"
		}
	}

	for {
		snap := seg.Snapshot()
		switch out {
		case "text":
			printSnapshot(os.Stdout, snap)
		case "msgpack":
			if err := segment.EncodeSnapshot(os.Stdout, snap); err != nil {
				log.Fatalf("%v", err)
			}
		default:
			log.Fatalf("Unknown format %q", out)
		}
		if *watch <= 0 {
			return
		}
		time.Sleep(*watch)
	}
}

func decodeStream(r io.Reader, w io.Writer) error {
	// One buffered reader for the whole stream so no decoder reads ahead
	// into the next snapshot.
	r = bufio.NewReader(r)
	for {
		snap, err := segment.DecodeSnapshot(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		printSnapshot(w, snap)
	}
}

func printSnapshot(w io.Writer, s segment.Snapshot) {
	fmt.Fprintf(w, "Instance %d (%d bytes)\n", s.Instance, s.SliceSize)
	fmt.Fprintf(w, "  Status:          %s\n", status.State(s.DriverStatus))
	fmt.Fprintf(w, "  Sync mode:       %v\n", s.SyncMode)
	fmt.Fprintf(w, "  Ring capacity:   %d frames\n", s.RingCapacity)
	fmt.Fprintf(w, "  Activation seed: %d\n", s.ActivationSeed)
	fmt.Fprintf(w, "  Anchors:         %d (period %d)\n", s.NumberOfAnchors, s.AnchorPeriod)
	fmt.Fprintf(w, "  Last anchor:     frame %d at host time %d\n", s.AnchorFrame, s.ZeroHostTime)
	for g, gs := range s.Groups {
		fmt.Fprintf(w, "  Group %d: write %d read %d  to-client %d/%d  to-driver %d/%d\n",
			g, gs.WriteFrameNumber, gs.ReadFrameNumber,
			gs.ToClientWrite, gs.ToClientRead, gs.ToDriverWrite, gs.ToDriverRead)
	}
	for _, q := range s.Queues {
		fmt.Fprintf(w, "  MIDI %d %-9s written %d read %d dropped %d (last at %d)\n",
			q.Port+1, q.Direction, q.Written, q.Read, q.Dropped, q.LastDrop)
	}
	fmt.Fprintln(w)
}
