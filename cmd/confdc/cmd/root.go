/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/ncxd/confd/pkg/netconf"
)

const eomMarker = "]]>]]>"

var socketPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "confdc",
	Short:        "confdc talks NETCONF to a confd engine over its Unix-domain socket",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(netconf.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/confd/confd.sock", "confd NETCONF unix socket path")
}

var nextMessageID atomic.Uint64

// sendRPC dials the configured socket, frames body as <rpc>, and returns
// the decoded <rpc-reply> payload: the reply's <data> element when
// present, or nil on a bare <ok/> reply. A non-nil *netconf.RPCError is
// returned unwrapped so callers can match on its Tag.
func sendRPC(body string) (*etree.Element, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	defer conn.Close()

	msgID := strconv.FormatUint(nextMessageID.Add(1), 10)
	rpc := fmt.Sprintf(`<rpc message-id="%s" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">%s</rpc>`, msgID, body)
	if _, err := conn.Write([]byte(rpc + "\n" + eomMarker + "\n")); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	reader := bufio.NewReader(conn)
	var sb strings.Builder
	for {
		line, err := reader.ReadString('\n')
		sb.WriteString(line)
		if strings.Contains(sb.String(), eomMarker) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading reply: %w", err)
		}
	}
	raw := strings.Replace(sb.String(), eomMarker, "", 1)

	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, fmt.Errorf("parsing reply: %w", err)
	}
	reply := doc.Root()
	if reply == nil {
		return nil, fmt.Errorf("empty reply")
	}
	if rpcErr := reply.SelectElement("rpc-error"); rpcErr != nil {
		return nil, rpcErrorFromElement(rpcErr)
	}
	return reply.SelectElement("data"), nil
}

func rpcErrorFromElement(elem *etree.Element) *netconf.RPCError {
	text := func(tag string) string {
		if c := elem.SelectElement(tag); c != nil {
			return c.Text()
		}
		return ""
	}
	return &netconf.RPCError{
		Type:     netconf.ErrorType(text("error-type")),
		Tag:      netconf.ErrorTag(text("error-tag")),
		Severity: netconf.ErrorSeverity(text("error-severity")),
		Path:     text("error-path"),
		Message:  text("error-message"),
	}
}

func datastoreElement(tag, name string) string {
	return fmt.Sprintf(`<%s><%s/></%s>`, tag, name, tag)
}
