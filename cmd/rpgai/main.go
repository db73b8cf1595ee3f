package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wildercb/VR-RPGAI/internal/character"
	"github.com/wildercb/VR-RPGAI/internal/chat"
	"github.com/wildercb/VR-RPGAI/internal/config"
	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/memory"
	"github.com/wildercb/VR-RPGAI/internal/repository"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	var vectors memory.VectorStore = store.Memories
	if cfg.VectorBackend == config.VectorMemory {
		vectors = memory.NewChromemStore()
	}
	memoryService := memory.NewService(embedder, vectors)

	registry, err := newRegistry(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to configure llm providers: %v", err)
	}

	extractionProvider, err := registry.Resolve(cfg.ExtractionProvider)
	if err != nil {
		log.Fatalf("failed to resolve extraction provider: %v", err)
	}
	extractor := memory.NewExtractor(extractionProvider, cfg.ExtractionModel)
	worker := memory.NewWorker(extractor, memoryService, cfg.ExtractionWorkers, cfg.ExtractionQueueSize)
	defer worker.Close()

	orchestrator := chat.NewOrchestrator(
		store.Characters,
		store.Conversations,
		memoryService,
		registry,
		worker,
		chat.Config{
			CharacterMemoryLimit: cfg.CharacterMemoryLimit,
			GlobalMemoryLimit:    cfg.GlobalMemoryLimit,
			RecentMessageWindow:  cfg.RecentMessageWindow,
		},
	)
	characterService := character.NewService(store.Characters, registry, cfg.DefaultProvider, cfg.DefaultModel)

	userID := os.Getenv("RPGAI_USER_ID")
	if userID == "" {
		userID = "local-user"
	}

	if err := runREPL(ctx, orchestrator, characterService, store.Characters, userID); err != nil && ctx.Err() == nil {
		log.Fatalf("chat loop failed: %v", err)
	}
}

func newEmbedder(ctx context.Context, cfg config.Config) (memory.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		return memory.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	case "openai":
		return memory.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newRegistry(ctx context.Context, cfg config.Config) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	if cfg.OllamaBaseURL != "" {
		provider, err := llm.NewOllamaProvider(cfg.OllamaBaseURL, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		registry.Register(provider)
	}
	if cfg.OpenAIAPIKey != "" {
		provider, err := llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		registry.Register(provider)
	}
	if cfg.OpenRouterAPIKey != "" {
		provider, err := llm.NewOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		registry.Register(provider)
	}
	if cfg.GoogleAPIKey != "" {
		provider, err := llm.NewGeminiProvider(ctx, cfg.GoogleAPIKey, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		registry.Register(provider)
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no llm providers configured; set OLLAMA_BASE_URL or a provider API key")
	}
	if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
		log.Printf("default provider %q not configured, using %v", cfg.DefaultProvider, registry.Names())
	}
	return registry, nil
}

func runREPL(
	ctx context.Context,
	orchestrator *chat.Orchestrator,
	characters *character.Service,
	repo *repository.CharacterRepo,
	userID string,
) error {
	existing, err := repo.List(ctx, userID)
	if err != nil {
		return err
	}

	var active *types.Character
	scanner := bufio.NewScanner(os.Stdin)

	if len(existing) > 0 {
		active = &existing[0]
		fmt.Printf("talking to %s (create a new character with /create <concept>)\n", active.Name)
	} else {
		fmt.Print("describe your character: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		active, err = characters.Generate(ctx, userID, strings.TrimSpace(scanner.Text()), "", "")
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n", active.Name)
	}

	fmt.Print("you> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/create "):
			active, err = characters.Generate(ctx, userID, strings.TrimPrefix(line, "/create "), "", "")
			if err != nil {
				fmt.Printf("error: %v\n", err)
			} else {
				fmt.Printf("created %s\n", active.Name)
			}
		case line == "/memories":
			memories, err := orchestrator.ListMemories(ctx, active.ID, userID)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
			for _, mem := range memories {
				fmt.Printf("- %s\n", mem.Content)
			}
		default:
			reply, err := orchestrator.SendMessage(ctx, chat.SendRequest{
				CharacterID: active.ID,
				UserID:      userID,
				Message:     line,
			})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
			fmt.Printf("%s> %s\n", active.Name, reply.Content)
		}
		fmt.Print("you> ")
	}
	return scanner.Err()
}
