// a2a CLI - Command line client for the A2A protocol engine
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/clients/go/a2aclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("A2A_URL")
	client := a2aclient.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		err := client.Health(ctx)
		exitOnError(err)
		fmt.Println("healthy")

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: a2a send <recipient> <payload-json> [kind]")
			os.Exit(1)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(os.Args[3]), &payload); err != nil {
			fmt.Fprintln(os.Stderr, "Error: payload must be a JSON object")
			os.Exit(1)
		}
		kind := "notification"
		if len(os.Args) > 4 {
			kind = os.Args[4]
		}
		msg, err := client.SendMessage(ctx, a2aclient.SendMessageRequest{
			Kind:      kind,
			Recipient: os.Args[2],
			Payload:   payload,
		})
		exitOnError(err)
		fmt.Printf("Sent: %s -> %s\n", msg.ID, msg.Recipient)

	case "get":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: a2a get <message_id>")
			os.Exit(1)
		}
		msg, err := client.GetMessage(ctx, os.Args[2])
		exitOnError(err)
		if msg == nil {
			fmt.Println("not found")
			os.Exit(1)
		}
		printJSON(msg)

	case "peers":
		resp, err := client.ListPeers(ctx)
		exitOnError(err)
		for _, p := range resp.Peers {
			seen := time.UnixMilli(p.LastSeen).Format("2006-01-02 15:04:05")
			fmt.Printf("  %-24s %-7s load=%-5d seen=%s\n", p.AgentID, p.Status, p.Load, seen)
		}

	case "peer":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: a2a peer <agent_id>")
			os.Exit(1)
		}
		peer, err := client.GetPeer(ctx, os.Args[2])
		exitOnError(err)
		if peer == nil {
			fmt.Println("not found")
			os.Exit(1)
		}
		printJSON(peer)

	case "metrics":
		m, err := client.GetSecurityMetrics(ctx)
		exitOnError(err)
		printJSON(m)

	case "events":
		q := a2aclient.EventQuery{Limit: 20}
		if len(os.Args) > 2 {
			q.Kind = os.Args[2]
		}
		resp, err := client.ListSecurityEvents(ctx, q)
		exitOnError(err)
		for _, ev := range resp.Events {
			ts := time.UnixMilli(ev.Timestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s/%s: %s\n", ts, ev.Kind, ev.Severity, ev.Message)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`a2a CLI - Agent-to-Agent Protocol Engine

Usage: a2a <command> [options]

Commands:
  send <recipient> <payload> [kind]   Send a message ("any" picks a peer)
  get <message_id>                    Fetch a message by id
  peers                               List known peers
  peer <agent_id>                     Show one peer
  metrics                             Show security failure counters
  events [kind]                       List recent security events
  health                              Check engine health

Environment:
  A2A_URL   Engine URL (default: http://localhost:8080)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
