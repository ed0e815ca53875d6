package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/session"
)

var (
	addrFlag    string
	jsonFlag    bool
	timeoutFlag time.Duration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	defaultAddr := os.Getenv(config.EnvPrefix + "_HTTP_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:3333"
	}

	root := &cobra.Command{
		Use:           "wppctl",
		Short:         "Control a running wppd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&addrFlag, "addr", defaultAddr, "daemon HTTP address")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output raw JSON")
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		statusCmd(),
		qrCmd(),
		contactsCmd(),
		chatsCmd(),
		chatCmd(),
		messagesCmd(),
		sendCmd(),
		syncCmd(),
		connectCmd(),
		resetCmd(),
		logoutCmd(),
		tokensCmd(),
		configCmd(),
	)
	return root
}

func apiClient() *client.Client {
	return client.New(addrFlag, timeoutFlag)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := apiClient().Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st api.StatusResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", st.Status)
	fmt.Fprintf(tw, "Ready:\t%v\n", st.Ready)
	fmt.Fprintf(tw, "Authenticated:\t%v\n", st.Authenticated)
	fmt.Fprintf(tw, "QR pending:\t%v\n", st.HasQR)
	fmt.Fprintf(tw, "Contacts:\t%d\n", st.ContactsCount)
	fmt.Fprintf(tw, "Chats:\t%d\n", st.ChatsCount)
	if st.LastSync != nil {
		fmt.Fprintf(tw, "Last sync:\t%s\n", st.LastSync.Local().Format(time.DateTime))
	} else {
		fmt.Fprintf(tw, "Last sync:\tnever\n")
	}
	fmt.Fprintf(tw, "Session:\texists=%v valid=%v\n", st.Session.Exists, st.Session.Valid)
	tokens := fmt.Sprintf("valid=%v refresh=%v", st.Tokens.Valid, st.Tokens.HasRefreshToken)
	if st.Tokens.ExpiresAt != nil {
		tokens += " expires=" + time.UnixMilli(*st.Tokens.ExpiresAt).Local().Format(time.DateTime)
	}
	fmt.Fprintf(tw, "Tokens:\t%s\n", tokens)
	fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
	_ = tw.Flush()
}

func qrCmd() *cobra.Command {
	var pngPath string
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Render the pending pairing QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			if pngPath != "" {
				data, err := c.QRPNG(cmd.Context())
				if err != nil {
					return err
				}
				return os.WriteFile(pngPath, data, 0600)
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !st.HasQR {
				return fmt.Errorf("no QR code pending (status %s)", st.Status)
			}
			q, err := qrcode.New(st.QR, qrcode.Low)
			if err != nil {
				return fmt.Errorf("render qr: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), q.ToSmallString(false))
			fmt.Fprintln(cmd.OutOrStdout(), "Scan with WhatsApp > Linked devices > Link a device")
			return nil
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write the QR image to this file instead")
	return cmd
}

func contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List saved contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Contacts(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tNUMBER\tID")
			for _, c := range resp.Contacts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Number, c.ID)
			}
			_ = tw.Flush()
			printCached(cmd.OutOrStdout(), resp.Cached, len(resp.Contacts), "contacts")
			return nil
		},
	}
}

func chatsCmd() *cobra.Command {
	var groups bool
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Chats(cmd.Context(), groups)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tUNREAD\tGROUP\tID")
			for _, c := range resp.Chats {
				fmt.Fprintf(tw, "%s\t%d\t%v\t%s\n", c.Name, c.UnreadCount, c.IsGroup, c.ID)
			}
			_ = tw.Flush()
			printCached(cmd.OutOrStdout(), resp.Cached, len(resp.Chats), "chats")
			return nil
		},
	}
	cmd.Flags().BoolVar(&groups, "groups", true, "include group chats")
	return cmd
}

func chatCmd() *cobra.Command {
	var noMessages bool
	var limit int
	cmd := &cobra.Command{
		Use:   "chat <chat-id>",
		Short: "Show one chat with its recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Chat(cmd.Context(), args[0], !noMessages, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) unread=%d group=%v\n",
				resp.Chat.Name, resp.Chat.ID, resp.Chat.UnreadCount, resp.Chat.IsGroup)
			printMessages(cmd.OutOrStdout(), resp.Messages)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noMessages, "no-messages", false, "skip the message history")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of messages to fetch")
	return cmd
}

func messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "Fetch recent messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Messages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			printMessages(cmd.OutOrStdout(), resp.Messages)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "number of messages to fetch")
	return cmd
}

func printMessages(w io.Writer, msgs []api.MessageView) {
	for _, m := range msgs {
		who := m.Author
		if m.FromMe {
			who = "me"
		}
		ts := time.Unix(m.Timestamp, 0).Local().Format(time.DateTime)
		body := m.Body
		if m.Type != "text" && body == "" {
			body = "<" + m.Type + ">"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", ts, who, body)
	}
}

func sendCmd() *cobra.Command {
	var chat bool
	cmd := &cobra.Command{
		Use:   "send <to> <message>",
		Short: "Send a text message",
		Long:  "Send a text message to a phone number or JID. With --chat, <to> is a chat id sent through /chat/{id}/send.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			var resp client.SendResult
			var err error
			if chat {
				resp, err = c.SendToChat(cmd.Context(), args[0], args[1])
			} else {
				resp, err = c.Send(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", resp.MessageID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&chat, "chat", false, "treat <to> as a chat id")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh contacts and chats from WhatsApp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d contacts and %d chats\n", resp.Contacts, resp.Chats)
			return nil
		},
	}
}

// actionCmd builds a command that runs one account action and prints the
// reply message.
func actionCmd(use, short string, action func(*client.Client, context.Context) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := action(apiClient(), cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"success": true, "message": msg})
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	return actionCmd("connect", "Start a connection attempt", (*client.Client).Connect)
}

func resetCmd() *cobra.Command {
	return actionCmd("reset", "Wipe the session and pair again", (*client.Client).Reset)
}

func logoutCmd() *cobra.Command {
	return actionCmd("logout", "Unlink this device from the account", (*client.Client).Logout)
}

func tokensCmd() *cobra.Command {
	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "Manage API tokens",
	}
	tokens.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rotate the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := apiClient().RefreshTokens(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"tokens": tokens})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tokens refreshed, expire at %s\n",
				tokens.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	})
	return tokens
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the daemon configuration file",
	}
	var dataDir string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			path := session.Layout{DataDir: cfg.DataDir}.ConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory to record in the file")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func printCached(w io.Writer, cached bool, n int, what string) {
	if cached {
		fmt.Fprintf(w, "%d %s (cached)\n", n, what)
		return
	}
	fmt.Fprintf(w, "%d %s\n", n, what)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
