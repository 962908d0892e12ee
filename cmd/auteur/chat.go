package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/himanalot/auteur-sub004/pkg/agent"
	"github.com/himanalot/auteur-sub004/pkg/claude/api"
	"github.com/himanalot/auteur-sub004/pkg/conversation"
	"github.com/himanalot/auteur-sub004/pkg/events"
	"github.com/himanalot/auteur-sub004/pkg/prompt"
	"github.com/himanalot/auteur-sub004/pkg/settings"
	"github.com/himanalot/auteur-sub004/pkg/toolkit"
	"github.com/himanalot/auteur-sub004/pkg/tools"
)

func newChatCommand() *cobra.Command {
	var (
		docsURL        string
		bridgeURL      string
		projectContext string
		transcriptPath string
		dumpEvents     bool
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt to the assistant and let it work the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			apiKey := viper.GetString("api-key")
			if apiKey == "" {
				apiKey = s.Client.APIKey
			}
			if apiKey == "" {
				return errors.New("no API key configured, set --api-key or AUTEUR_API_KEY")
			}

			clientOptions := []api.ClientOption{}
			if s.Client.BaseURL != "" {
				clientOptions = append(clientOptions, api.WithBaseURL(s.Client.BaseURL))
			}
			if s.Client.APIVersion != "" {
				clientOptions = append(clientOptions, api.WithAPIVersion(s.Client.APIVersion))
			}
			client := api.NewClient(apiKey, clientOptions...)

			registry := tools.NewInMemoryToolRegistry()
			err = toolkit.RegisterDefaultTools(registry,
				toolkit.NewHTTPDocSearcher(docsURL),
				toolkit.NewHTTPScriptRunner(bridgeURL))
			if err != nil {
				return errors.Wrap(err, "failed to register tools")
			}

			systemPrompt, err := buildSystemPrompt(s, registry, projectContext)
			if err != nil {
				return err
			}

			router, err := events.NewEventRouter()
			if err != nil {
				return errors.Wrap(err, "failed to create event router")
			}
			defer func() {
				_ = router.Close()
			}()

			sink := events.NewPublisherManager()
			sink.SubscribePublisher("chat", router.Publisher)
			if dumpEvents {
				router.AddHandler("raw-events", "chat", router.DumpRawEvents)
			} else {
				// a handler has to consume the topic or publishing blocks
				router.RegisterChatEventHandler("chat-log", "chat", &logChatHandler{})
			}

			executor := tools.NewExecutor(registry,
				tools.WithExecutionTimeout(s.Agent.ToolTimeout))

			loop, err := agent.New(
				agent.WithBackend(client),
				agent.WithRegistry(registry),
				agent.WithExecutor(executor),
				agent.WithSystemPrompt(systemPrompt),
				agent.WithModel(s.Chat.Model),
				agent.WithMaxTokens(s.Chat.MaxResponseTokens),
				agent.WithTemperature(s.Chat.Temperature),
				agent.WithTopP(s.Chat.TopP),
				agent.WithStopSequences(s.Chat.Stop),
				agent.WithBudget(s.Agent.Budget),
				agent.WithEventSinks(sink),
				agent.WithDeltaHandler(func(delta string) {
					fmt.Print(delta)
				}),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			var session *agent.Session
			eg := errgroup.Group{}
			eg.Go(func() error {
				defer cancel()
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				<-router.Running()

				var runErr error
				session, runErr = runSession(ctx, loop, transcriptPath, args[0])
				return runErr
			})

			if err := eg.Wait(); err != nil && session == nil {
				return err
			}
			fmt.Println()

			return finishSession(s, session)
		},
	}

	cmd.Flags().StringVar(&docsURL, "docs-url", "http://localhost:8810", "Documentation search service URL")
	cmd.Flags().StringVar(&bridgeURL, "bridge-url", "http://localhost:8811", "After Effects script bridge URL")
	cmd.Flags().StringVar(&projectContext, "project-context", "", "Extra project context for the system prompt")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Continue from a saved transcript")
	cmd.Flags().BoolVar(&dumpEvents, "dump-events", false, "Print raw chat events as JSON")

	return cmd
}

func loadSettings() (*settings.Settings, error) {
	path := viper.GetString("settings")
	if path == "" {
		return settings.NewSettings(), nil
	}
	return settings.LoadFromFile(path)
}

func buildSystemPrompt(s *settings.Settings, registry tools.ToolRegistry, projectContext string) (string, error) {
	summaries := []prompt.ToolSummary{}
	for _, def := range registry.ListTools() {
		summaries = append(summaries, prompt.ToolSummary{
			Name:        def.Name,
			Description: def.Description,
		})
	}

	data := prompt.SystemPromptData{
		AssistantName:  "Auteur",
		Tools:          summaries,
		ProjectContext: projectContext,
	}

	if s.Agent.SystemPromptFile != "" {
		raw, err := os.ReadFile(s.Agent.SystemPromptFile)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read system prompt file %s", s.Agent.SystemPromptFile)
		}
		return prompt.Render(string(raw), data)
	}

	return prompt.RenderSystemPrompt(data)
}

func runSession(ctx context.Context, loop *agent.Loop, transcriptPath string, userMessage string) (*agent.Session, error) {
	if transcriptPath == "" {
		return loop.Run(ctx, userMessage)
	}

	conv, err := conversation.LoadTranscript(transcriptPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load transcript %s", transcriptPath)
	}
	conv = append(conv, conversation.NewUserTurn(userMessage))
	return loop.RunConversation(ctx, conv)
}

func finishSession(s *settings.Settings, session *agent.Session) error {
	if session == nil {
		return errors.New("session did not run")
	}

	if s.Agent.TranscriptDirectory != "" {
		path := filepath.Join(s.Agent.TranscriptDirectory, session.ID+".yaml")
		if err := conversation.SaveTranscript(path, session.Conversation); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to save transcript")
		} else {
			log.Info().Str("path", path).Msg("Saved transcript")
		}
	}

	switch session.Status {
	case agent.StatusCompleted:
		log.Info().
			Int("iterations", session.IterationCount).
			Int("tool_calls", session.TotalToolCalls).
			Msg("Session completed")
		return nil
	case agent.StatusAborted:
		fmt.Fprintf(os.Stderr, "session aborted: %s\n", session.AbortReason)
		return nil
	case agent.StatusFailed:
		return session.Err
	default:
		return errors.Errorf("session ended in unexpected status %s", session.Status)
	}
}

// logChatHandler acks chat events and logs tool activity so the topic
// always has a consumer.
type logChatHandler struct{}

func (h *logChatHandler) HandleStart(ctx context.Context, e *events.EventStart) error {
	return nil
}

func (h *logChatHandler) HandleContentDelta(ctx context.Context, e *events.EventContentDelta) error {
	return nil
}

func (h *logChatHandler) HandleToolCallStart(ctx context.Context, e *events.EventToolCallStart) error {
	fmt.Fprintf(os.Stderr, "\n[tool] %s\n", e.ToolCall.Name)
	return nil
}

func (h *logChatHandler) HandleToolCallComplete(ctx context.Context, e *events.EventToolCallComplete) error {
	if !e.ToolResult.Success {
		fmt.Fprintf(os.Stderr, "[tool] failed: %s\n", e.ToolResult.Error)
	}
	return nil
}

func (h *logChatHandler) HandleChatComplete(ctx context.Context, e *events.EventChatComplete) error {
	return nil
}

func (h *logChatHandler) HandleChatAborted(ctx context.Context, e *events.EventChatAborted) error {
	return nil
}

func (h *logChatHandler) HandleError(ctx context.Context, e *events.EventError) error {
	fmt.Fprintf(os.Stderr, "error: %s\n", e.ErrorString)
	return nil
}
