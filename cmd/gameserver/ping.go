package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/gameserver/gameclient"
	"github.com/cyberinferno/gameserver/perfmonitor"
	"github.com/cyberinferno/gameserver/protocol"
)

const pingTimeout = 5 * time.Second

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Sends heartbeats to a running server and prints round-trip times",
	RunE:  PingCommand,
}

var (
	AddressFlag string
	CountFlag   int
)

// PingCommand sends CountFlag heartbeats to AddressFlag, one at a time.
func PingCommand(cmd *cobra.Command, args []string) error {
	cfg := gameclient.DefaultConfig(AddressFlag)
	cfg.ConnectionTimeout = pingTimeout

	client := gameclient.New(cfg)
	defer client.Close()

	replies := make(chan protocol.Frame, 1)
	client.OnFrame(func(event gameclient.FrameEvent) {
		if event.Frame.Category == protocol.RequestNone && event.Frame.Action == protocol.ActionHeartbeat {
			replies <- event.Frame
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("error connecting to %s: %w", AddressFlag, err)
	}

	for i := 1; i <= CountFlag; i++ {
		sent := time.Now()
		pm := perfmonitor.StartNew()

		if err := client.Send(protocol.RequestNone, protocol.ActionHeartbeat, strconv.FormatInt(sent.UnixMilli(), 10)); err != nil {
			return err
		}

		select {
		case f := <-replies:
			pm.Stop()
			fmt.Printf("heartbeat %d from %s: rtt=%.2fms%s\n", i, AddressFlag, pm.ElapsedMilliseconds(), skew(f.Payload, sent, pm.Elapsed()))
		case <-time.After(pingTimeout):
			return fmt.Errorf("heartbeat %d: no reply within %s", i, pingTimeout)
		}

		if i < CountFlag {
			time.Sleep(time.Second)
		}
	}

	return nil
}

// skew estimates the server clock offset from a "<sent>,<server millis>"
// reply, assuming the server stamped it halfway through the round trip.
func skew(payload string, sent time.Time, rtt time.Duration) string {
	_, serverMillis, ok := strings.Cut(payload, ",")
	if !ok {
		return ""
	}

	ms, err := strconv.ParseInt(serverMillis, 10, 64)
	if err != nil {
		return ""
	}

	offset := time.UnixMilli(ms).Sub(sent.Add(rtt / 2))
	return fmt.Sprintf(" skew=%s", offset.Round(time.Millisecond))
}
