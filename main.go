package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fabfab/docchat/agent"
	"github.com/fabfab/docchat/api"
	"github.com/fabfab/docchat/chat"
	"github.com/fabfab/docchat/config"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "search":
		searchCmd(cfg, logger, os.Args[2:])
	case "history":
		historyCmd(cfg, logger, os.Args[2:])
	case "reset":
		resetCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newAgent(ctx context.Context, cfg config.Config, logger *log.Logger) *agent.Agent {
	a, err := agent.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	return a
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	logger.Printf("ingesting documents from %s using %s/%s embeddings", *dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	indexed, err := a.IngestDirectory(ctx, *dataDir)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
	logger.Printf("indexed %d chunks", indexed)
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask")
	conversation := flags.String("conversation", "", "conversation id for multi-turn context")
	topK := flags.Int("k", 0, "number of passages to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	result, err := a.Ask(ctx, *question, chat.AskOptions{ConversationID: *conversation, TopK: *topK})
	if err != nil {
		logger.Fatalf("ask failed: %v", err)
	}

	fmt.Println(result.Answer)
	printSources(result.Sources)
}

func searchCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("search", flag.ExitOnError)
	query := flags.String("query", "", "text to search for")
	topK := flags.Int("k", 0, "number of passages to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse search flags: %v", err)
	}

	if strings.TrimSpace(*query) == "" {
		logger.Fatal("search requires --query")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	passages, err := a.Search(ctx, *query, *topK)
	if err != nil {
		logger.Fatalf("search failed: %v", err)
	}

	if len(passages) == 0 {
		fmt.Println("No matching passages.")
		return
	}
	printSources(passages)
}

func historyCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	conversation := flags.String("conversation", "", "conversation id")
	clear := flags.Bool("clear", false, "clear the stored history instead of printing it")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse history flags: %v", err)
	}

	if strings.TrimSpace(*conversation) == "" {
		logger.Fatal("history requires --conversation")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	if *clear {
		a.ClearHistory(*conversation)
		logger.Printf("history cleared for %s", *conversation)
		return
	}

	messages := a.History(*conversation)
	if len(messages) == 0 {
		fmt.Println("No stored history.")
		return
	}
	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
}

func resetCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("reset", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse reset flags: %v", err)
	}

	if !*confirmed {
		fmt.Printf("This will permanently delete indexed chunks from namespace %q. Continue? [y/N]: ", cfg.Vector.Namespace)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("reset aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("reset aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	if err := a.Reset(ctx); err != nil {
		logger.Fatalf("reset failed: %v", err)
	}
	logger.Println("indexed chunks removed")
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newAgent(ctx, cfg, logger)
	defer a.Close(ctx)

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(a, cfg.DataDir, logger),
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Printf("shutdown http server: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server: %v", err)
	}
}

func printSources(passages []chat.ScoredPassage) {
	if len(passages) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for idx, passage := range passages {
		title, _ := passage.Metadata["title"].(string)
		source, _ := passage.Metadata["source"].(string)
		label := passage.ID
		if title != "" {
			label = title
		}
		if source != "" {
			label += " (" + source + ")"
		}
		fmt.Printf("%d. %s score %.3f\n", idx+1, label, passage.Score)
		if passage.Insight.ChunkCount > 0 {
			fmt.Printf("   Indexed chunks: %d\n", passage.Insight.ChunkCount)
		}
		if len(passage.Insight.Tags) > 0 {
			fmt.Printf("   Tags: %s\n", strings.Join(passage.Insight.Tags, ", "))
		}
		if len(passage.Insight.RelatedDocuments) > 0 {
			fmt.Println("   Related documents:")
			for _, related := range passage.Insight.RelatedDocuments {
				fmt.Printf("     - %s (%s)\n", related.Title, related.Reason)
			}
		}
	}
}

func printUsage() {
	fmt.Println("Usage: docchat <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Index documents from a directory (use --dir to override the data directory)")
	fmt.Println("  ask      Ask a question grounded in the indexed documents")
	fmt.Println("  search   Retrieve ranked passages without generating an answer")
	fmt.Println("  history  Print or clear a conversation's stored turns")
	fmt.Println("  reset    Remove indexed chunks from the configured namespace")
	fmt.Println("  serve    Run the HTTP API")
}
