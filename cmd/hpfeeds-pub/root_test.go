package main

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/hpfeeds/internal/protocol"
	"github.com/danmuck/hpfeeds/internal/testutil/brokertest"
	"github.com/danmuck/hpfeeds/internal/testutil/testlog"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func brokerArgs(b *brokertest.Broker) []string {
	return []string{
		"--host", b.Host(),
		"--port", strconv.Itoa(b.Port()),
		"--ident", "hpname",
		"--secret", "elongated_muskrat",
		"--channel", "chan1",
	}
}

func collectPublishes(t *testing.T, b *brokertest.Broker, n int) []brokertest.Event {
	t.Helper()
	var out []brokertest.Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-b.Events():
			if ev.Frame.Opcode == protocol.OpPublish {
				out = append(out, ev)
			}
		case <-timeout:
			t.Fatalf("got %d publishes, want %d", len(out), n)
		}
	}
	return out
}

func TestPublishArgsPayload(t *testing.T) {
	testlog.Start(t)
	b := brokertest.Start(t, brokertest.Options{Secrets: map[string]string{"hpname": "elongated_muskrat"}})
	args := append([]string{"publish"}, brokerArgs(b)...)
	args = append(args, "hp", "hit")
	if _, err := runRoot(t, "", args...); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := collectPublishes(t, b, 1)[0]
	if ev.Channel != "chan1" || string(ev.Payload) != "hp hit" || !ev.AuthOK {
		t.Fatalf("unexpected publish: %+v", ev)
	}
}

func TestPublishStdinLines(t *testing.T) {
	testlog.Start(t)
	b := brokertest.Start(t, brokertest.Options{Secrets: map[string]string{"hpname": "elongated_muskrat"}})
	args := append([]string{"publish", "--lines"}, brokerArgs(b)...)
	if _, err := runRoot(t, "one\r\n\ntwo\nthree\n", args...); err != nil {
		t.Fatalf("publish: %v", err)
	}
	evs := collectPublishes(t, b, 3)
	for i, want := range []string{"one", "two", "three"} {
		if string(evs[i].Payload) != want {
			t.Fatalf("line %d: got %q want %q", i, evs[i].Payload, want)
		}
	}
}

func TestPublishRequiresChannel(t *testing.T) {
	testlog.Start(t)
	_, err := runRoot(t, "", "publish", "--host", "localhost", "--port", "10000", "--ident", "x", "payload")
	if err == nil || !strings.Contains(err.Error(), "channel required") {
		t.Fatalf("expected channel required, got %v", err)
	}
}

func TestConfigInitThenPublishFromFile(t *testing.T) {
	testlog.Start(t)
	b := brokertest.Start(t, brokertest.Options{Secrets: map[string]string{"hpname": "change-me"}})
	path := filepath.Join(t.TempDir(), "pub.yaml")

	out, err := runRoot(t, "", "config", "init", path, "--format", "yaml")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote yaml config template") {
		t.Fatalf("unexpected output: %q", out)
	}
	if out, err := runRoot(t, "", "config", "validate", path); err != nil || !strings.Contains(out, "localhost:10000") {
		t.Fatalf("config validate: out=%q err=%v", out, err)
	}

	// file supplies ident/secret/channel; flags point it at the test broker
	_, err = runRoot(t, "", "publish", "--config", path, "--host", b.Host(), "--port", strconv.Itoa(b.Port()), "from-file")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := collectPublishes(t, b, 1)[0]
	if ev.Ident != "hpname" || ev.Channel != "chan1" || string(ev.Payload) != "from-file" {
		t.Fatalf("unexpected publish: %+v", ev)
	}
}
