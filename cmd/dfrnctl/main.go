// Command dfrnctl is an operator CLI for a dfrnd node.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dfrnproto/dfrnd/internal/httpclient"
	"github.com/dfrnproto/dfrnd/internal/probe"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `dfrnctl
Usage:
  dfrnctl -addr URL <cmd> [args]

Commands:
  version
  probe    -target <url-or-addr>                  (print remote descriptor)
  request  -nick <user> -target <url-or-addr> [-note text] [-duplex]
  approve  -nick <user> (-contact <uuid> | -issued <id>) [-duplex] [-hidden]
  poll     -url <poll-endpoint> -id <dfrn-id> [-type data]
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func postJSON(ctx context.Context, url string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, fmt.Errorf("bad response (%d): %s", resp.StatusCode, out)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s (%d)", m["error"], resp.StatusCode)
	}
	return m, nil
}

// main dispatches subcommands against the node's management API.
func main() {
	// global flags
	addr := flag.String("addr", "http://localhost:8080", "node base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	base := strings.TrimSuffix(*addr, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("dfrnctl %s (%s)\n", version, buildDate)

	case "probe":
		fs := flag.NewFlagSet("probe", flag.ExitOnError)
		target := fs.String("target", "", "profile URL or user@host address")
		_ = fs.Parse(flag.Args()[1:])
		if *target == "" {
			fmt.Fprintln(os.Stderr, "need -target")
			os.Exit(1)
		}

		prof, err := probe.New(httpclient.New(1)).Probe(ctx, *target)
		if err != nil {
			fail(err)
		}
		printJSON(prof)

	case "request":
		fs := flag.NewFlagSet("request", flag.ExitOnError)
		nick := fs.String("nick", "", "local user nickname")
		target := fs.String("target", "", "profile URL or user@host address")
		note := fs.String("note", "", "introduction note")
		duplex := fs.Bool("duplex", false, "request a mutual relationship")
		_ = fs.Parse(flag.Args()[1:])
		if *nick == "" || *target == "" {
			fmt.Fprintln(os.Stderr, "need -nick and -target")
			os.Exit(1)
		}

		out, err := postJSON(ctx, base+"/api/"+*nick+"/request", map[string]any{
			"target": *target,
			"note":   *note,
			"duplex": *duplex,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "approve":
		fs := flag.NewFlagSet("approve", flag.ExitOnError)
		nick := fs.String("nick", "", "local user nickname")
		contact := fs.String("contact", "", "contact id (uuid)")
		issued := fs.String("issued", "", "issued-id handed to the remote side")
		duplex := fs.Bool("duplex", false, "grant a mutual relationship")
		hidden := fs.Bool("hidden", false, "hide the contact from the public profile")
		_ = fs.Parse(flag.Args()[1:])
		if *nick == "" || (*contact == "" && *issued == "") {
			fmt.Fprintln(os.Stderr, "need -nick and one of -contact or -issued")
			os.Exit(1)
		}

		out, err := postJSON(ctx, base+"/api/"+*nick+"/approve", map[string]any{
			"contact_id": *contact,
			"issued_id":  *issued,
			"duplex":     *duplex,
			"hidden":     *hidden,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "poll":
		fs := flag.NewFlagSet("poll", flag.ExitOnError)
		pollURL := fs.String("url", "", "counterpart poll endpoint")
		id := fs.String("id", "", "relationship id (with optional 0:/1: prefix)")
		typ := fs.String("type", "data", "challenge type")
		_ = fs.Parse(flag.Args()[1:])
		if *pollURL == "" || *id == "" {
			fmt.Fprintln(os.Stderr, "need -url and -id")
			os.Exit(1)
		}

		q := url.Values{"dfrn_id": {*id}, "type": {*typ}}
		body, err := httpclient.New(1).Get(ctx, *pollURL+"?"+q.Encode(), 30*time.Second)
		if err != nil {
			fail(err)
		}
		os.Stdout.Write(body)
		fmt.Println()

	default:
		usage()
	}
}
