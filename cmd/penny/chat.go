package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/benaskins/penny/internal/chat"
	"github.com/benaskins/penny/internal/store"
	"github.com/benaskins/penny/internal/tui"
	"github.com/spf13/cobra"
)

const provider = "openai"

var chatConversationID int64

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		v, err := a.openVault("chat", true)
		if err != nil {
			return err
		}

		var conv *store.Conversation
		if chatConversationID != 0 {
			conv, err = st.GetConversation(ctx, chatConversationID)
		} else {
			conv, err = st.CreateConversation(ctx, "New conversation", provider)
		}
		if err != nil {
			return err
		}

		return tui.Run(ctx, tui.Options{
			Completer:      a.chatClient(v),
			History:        st,
			ConversationID: conv.ID,
			Title:          conv.Title,
			Transcript:     transcript(conv.Messages),
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		v, err := a.openVault("ask", false)
		if err != nil {
			return err
		}

		reply, err := ask(ctx, st, a.chatClient(v), prompt)
		if err != nil {
			return err
		}
		fmt.Println(reply.Content.String())
		return nil
	},
}

type completer interface {
	Complete(ctx context.Context, messages []chat.Message) (chat.Message, error)
}

// ask records prompt and the reply in a new conversation.
func ask(ctx context.Context, st *store.Store, c completer, prompt string) (chat.Message, error) {
	conv, err := st.CreateConversation(ctx, titleFrom(prompt), provider)
	if err != nil {
		return chat.Message{}, err
	}
	if _, err := st.AddMessage(ctx, conv.ID, chat.RoleUser, prompt); err != nil {
		return chat.Message{}, err
	}
	reply, err := c.Complete(ctx, []chat.Message{{Role: chat.RoleUser, Content: chat.Text(prompt)}})
	if err != nil {
		return chat.Message{}, err
	}
	if _, err := st.AddMessage(ctx, conv.ID, reply.Role, reply.Content.String()); err != nil {
		return chat.Message{}, err
	}
	return reply, nil
}

func transcript(msgs []store.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chat.Message{Role: m.Role, Content: chat.Text(m.Content)})
	}
	return out
}

// titleFrom derives a conversation title from the first prompt.
func titleFrom(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	r := []rune(title)
	if len(r) > 48 {
		return string(r[:47]) + "…"
	}
	if title == "" {
		return "New conversation"
	}
	return title
}

func init() {
	chatCmd.Flags().Int64Var(&chatConversationID, "conversation", 0, "resume the conversation with this id")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
}
