package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"talk2me/internal/codec"
	"talk2me/internal/cryptoenv"
)

// newClientCmd builds `talk2me client <operation> ...`, a thin wrapper over
// the wire protocol for manual testing and scripting — informative, not
// part of the core (spec §6). Grounded on the original t2mc.py's argv
// dispatch: one subcommand per operation, one connection per invocation.
func newClientCmd() *cobra.Command {
	var addr string
	var key string

	root := &cobra.Command{
		Use:   "client",
		Short: "Issue a single Talk2Me request and print the reply",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "localhost:9999", "server address")
	root.PersistentFlags().StringVar(&key, "key", "", "base64 encryption key (required)")

	add := func(use, short string, argsCheck cobra.PositionalArgs, fields func(args []string) map[string]any) {
		root.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  argsCheck,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runClientRequest(addr, key, fields(args))
			},
		})
	}

	add("register <username> <password>", "Register a new account", cobra.ExactArgs(2),
		func(a []string) map[string]any {
			return map[string]any{"operation": "register", "username": a[0], "password": a[1]}
		})

	add("login <username> <password> [chatname]", "Log in, optionally entering a chat", cobra.RangeArgs(2, 3),
		func(a []string) map[string]any {
			req := map[string]any{"operation": "login", "username": a[0], "password": a[1]}
			if len(a) > 2 {
				req["chatname"] = a[2]
			}
			return req
		})

	add("createchat <username> <password> <chatname> <member...>", "Create a chat", cobra.MinimumNArgs(3),
		func(a []string) map[string]any {
			return map[string]any{
				"operation": "createchat",
				"username":  a[0], "password": a[1], "chatname": a[2],
				"users": a[3:],
			}
		})

	add("sendmsg <token> <chatname> <message>", "Send a message", cobra.ExactArgs(3),
		func(a []string) map[string]any {
			return map[string]any{"operation": "sendmsg", "token": a[0], "chatname": a[1], "msg": a[2]}
		})

	add("recvmsg <token> <chatname>", "Receive unseen messages", cobra.ExactArgs(2),
		func(a []string) map[string]any {
			return map[string]any{"operation": "recvmsg", "token": a[0], "chatname": a[1]}
		})

	add("leavechat <username> <password> <chatname>", "Leave a chat", cobra.ExactArgs(3),
		func(a []string) map[string]any {
			return map[string]any{"operation": "leavechat", "username": a[0], "password": a[1], "chatname": a[2]}
		})

	add("listusers", "List registered users", cobra.NoArgs,
		func(a []string) map[string]any { return map[string]any{"operation": "listusers"} })

	add("listchats", "List known chats", cobra.NoArgs,
		func(a []string) map[string]any { return map[string]any{"operation": "listchats"} })

	add("stats", "Fetch server statistics", cobra.NoArgs,
		func(a []string) map[string]any { return map[string]any{"operation": "stats"} })

	return root
}

func runClientRequest(addr, keyB64 string, req map[string]any) error {
	if keyB64 == "" {
		return fmt.Errorf("client: --key is required")
	}
	key, err := cryptoenv.ParseKey(keyB64)
	if err != nil {
		return fmt.Errorf("client: parse key: %w", err)
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	plaintext, err := json.Marshal(req)
	if err != nil {
		return err
	}

	fconn := codec.NewConn(conn)
	if err := fconn.WriteJSON(key, plaintext); err != nil {
		return fmt.Errorf("client: write request: %w", err)
	}
	reply, err := fconn.ReadJSON(key)
	if err != nil {
		return fmt.Errorf("client: read reply: %w", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(reply, &pretty); err != nil {
		return fmt.Errorf("client: parse reply: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
