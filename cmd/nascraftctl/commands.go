package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"nascraft/internal/client"
	"nascraft/internal/logfile"
)

func runStatus(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("status", errOut)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	status, err := api.Status()
	if err != nil {
		return handleError(err, errOut)
	}
	writeIndentedJSON(out, status)
	return exitOK
}

func runDiscover(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("discover", errOut)
	timeout := fs.Duration("timeout", 0, "Discovery window (default: server default)")
	var targets stringList
	fs.Var(&targets, "target", "Broadcast probe target, repeatable")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *timeout < 0 {
		fmt.Fprintln(errOut, "timeout must be >= 0")
		return exitUsage
	}
	servers, err := api.Discover(client.DiscoverOptions{
		Timeout:        *timeout,
		BroadcastAddrs: targets,
	})
	if err != nil {
		return handleError(err, errOut)
	}
	writeIndentedJSON(out, servers)
	return exitOK
}

func runBrowse(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("browse", errOut)
	timeout := fs.Duration("timeout", 0, "Browse window (default: server default)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(errOut, "browse takes at most one service type")
		return exitUsage
	}
	servers, err := api.Browse(fs.Arg(0), *timeout)
	if err != nil {
		return handleError(err, errOut)
	}
	writeIndentedJSON(out, servers)
	return exitOK
}

func runWatch(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("watch", errOut)
	clearAll := fs.Bool("clear", false, "Stop watching every directory")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *clearAll && fs.NArg() > 0 {
		fmt.Fprintln(errOut, "--clear cannot be combined with directories")
		return exitUsage
	}
	if *clearAll || fs.NArg() > 0 {
		if err := api.SetWatchDirs(fs.Args()); err != nil {
			return handleError(err, errOut)
		}
	}
	dirs, err := api.WatchDirs()
	if err != nil {
		return handleError(err, errOut)
	}
	for _, dir := range dirs {
		fmt.Fprintln(out, dir)
	}
	return exitOK
}

func runLogs(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("logs", errOut)
	maxBytes := fs.Int64("max-bytes", 0, "Bytes to read from the end of the file")
	info := fs.Bool("info", false, "Print the log file location instead")
	follow := fs.Bool("follow", false, "Keep printing lines as the daemon writes them (same host only)")
	file := fs.String("file", "", "Log file to follow (default: ask the daemon)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *file != "" && !*follow {
		fmt.Fprintln(errOut, "--file requires --follow")
		return exitUsage
	}
	if *follow {
		if *info || *maxBytes != 0 {
			fmt.Fprintln(errOut, "--follow cannot be combined with --info or --max-bytes")
			return exitUsage
		}
		return followLog(api, *file, out, errOut)
	}
	if *info {
		details, err := api.LogInfo()
		if err != nil {
			return handleError(err, errOut)
		}
		fmt.Fprintf(out, "%s (max %d bytes)\n", details.LogFilePath, details.MaxBytes)
		return exitOK
	}
	text, err := api.ReadLog(*maxBytes)
	if err != nil {
		return handleError(err, errOut)
	}
	_, _ = io.WriteString(out, text)
	return exitOK
}

func runWebLog(api *client.Client, args []string, out, errOut io.Writer) int {
	fs := newCommandFlags("weblog", errOut)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(errOut, "usage: nascraftctl weblog <level> <message>")
		return exitUsage
	}
	message := strings.Join(fs.Args()[1:], " ")
	if err := api.WebLog(fs.Arg(0), message); err != nil {
		return handleError(err, errOut)
	}
	return exitOK
}


func followLog(api *client.Client, path string, out, errOut io.Writer) int {
	if path == "" {
		details, err := api.LogInfo()
		if err != nil {
			return handleError(err, errOut)
		}
		path = details.LogFilePath
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := logfile.Follow(ctx, path, logfile.FollowOptions{}, func(line string) {
		fmt.Fprintln(out, line)
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitServer
	}
	return exitOK
}
