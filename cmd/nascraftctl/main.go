package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"nascraft/internal/cli"
	"nascraft/internal/client"
	"nascraft/internal/discovery"
	"nascraft/internal/version"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitUnsupported = 2
	exitServer      = 3
)

var httpClient = &http.Client{Timeout: discovery.MaxTimeout + 15*time.Second}

type command struct {
	name    string
	summary string
	run     func(api *client.Client, args []string, out, errOut io.Writer) int
}

var commands = []command{
	{name: "status", summary: "Show server status", run: runStatus},
	{name: "discover", summary: "Find NAS servers on the local network", run: runDiscover},
	{name: "browse", summary: "Browse one mDNS service type", run: runBrowse},
	{name: "watch", summary: "List or replace the watched directories", run: runWatch},
	{name: "logs", summary: "Print or follow the tail of the log file", run: runLogs},
	{name: "weblog", summary: "Append a web log line", run: runWebLog},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("nascraftctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := cli.AddServerFlags(fs)
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "")
	fs.Usage = func() {
		printHelp(fs.Output())
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if helpVersion.Help {
		printHelp(out)
		return exitOK
	}
	if helpVersion.Version {
		if version.Version == "" || version.Version == "dev" {
			fmt.Fprintln(out, "nascraftctl dev")
		} else {
			fmt.Fprintf(out, "nascraftctl version %s\n", version.Version)
		}
		return exitOK
	}
	if fs.NArg() == 0 {
		printHelp(errOut)
		return exitUsage
	}

	name := fs.Arg(0)
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		resolved := server.Resolve()
		api := client.New(httpClient, resolved.URL, resolved.Token)
		return cmd.run(api, fs.Args()[1:], out, errOut)
	}
	fmt.Fprintf(errOut, "unknown command %q\n", name)
	printHelp(errOut)
	return exitUsage
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: nascraftctl [options] <command> [args]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Control a running nascraftd")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeOption(out, "--url URL", "Server URL (env: NASCRAFT_URL, default: "+cli.DefaultServerURL+")")
	writeOption(out, "--token TOKEN", "Auth token (env: NASCRAFT_TOKEN, default: none)")
	writeOption(out, "--help", "Show this help message")
	writeOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	for _, cmd := range commands {
		writeOption(out, cmd.name, cmd.summary)
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success")
	fmt.Fprintln(out, "  1  Usage error")
	fmt.Fprintln(out, "  2  Unsupported on the server platform")
	fmt.Fprintln(out, "  3  Network or server error")
}

func writeOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-16s %s\n", name, desc)
}

func newCommandFlags(name string, errOut io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("nascraftctl "+name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	return fs
}

func handleError(err error, errOut io.Writer) int {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		fmt.Fprintf(errOut, "server error (%d): %s\n", httpErr.StatusCode, httpErr.Message)
		if httpErr.StatusCode == http.StatusNotImplemented {
			return exitUnsupported
		}
		return exitServer
	}
	fmt.Fprintln(errOut, err)
	return exitServer
}

func writeIndentedJSON(out io.Writer, value any) {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(value)
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}
