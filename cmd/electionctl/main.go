// Command electionctl is a tiny CLI for poking a running electiond's
// admin API: checking status or issuing operator actions.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:2113", "electiond admin API base URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: electionctl [-addr URL] status|start-elections|resign|shutdown|priority <value>")
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "status":
		err = get(*addr + "/v1/status")
	case "start-elections":
		err = post(*addr+"/v1/actions/start-elections", nil)
	case "resign":
		err = post(*addr+"/v1/actions/resign", nil)
	case "shutdown":
		err = post(*addr+"/v1/actions/shutdown", nil)
	case "priority":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: electionctl priority <value>")
			os.Exit(2)
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fmt.Fprintln(os.Stderr, "priority value must be an integer")
			os.Exit(2)
		}
		body, _ := json.Marshal(map[string]int{"value": v})
		err = post(*addr+"/v1/actions/priority", body)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func get(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp.Body)
}

func post(url string, body []byte) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp.Body)
}

func printBody(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
