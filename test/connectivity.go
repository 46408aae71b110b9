package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/auth"
	"granite-vision-go/src/core/result"
	"granite-vision-go/src/core/utils"
	"granite-vision-go/src/core/watsonx"

	"github.com/joho/godotenv"
)

func main() {
	imagePath := flag.String("image", "", "image to describe after authenticating")
	task := flag.String("task", "", "task name: OCR, HTML Generation, Flowchart Analysis, Code Generation")
	prompt := flag.String("prompt", "", "custom prompt, overrides the task prompt")
	flag.Parse()

	fmt.Println("=== watsonx connectivity check ===")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using process environment")
	}

	config, path, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("config file: %s", path)

	logger, err := utils.NewLogger(config)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Close()

	creds, err := configs.LoadCredentials()
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	fmt.Printf("identity endpoint: %s\n", auth.TokenURL(creds.IdentityEndpoint))
	fmt.Printf("chat endpoint:     %s\n", config.Watsonx.ChatURL)
	fmt.Printf("model:             %s\n", config.Watsonx.ModelID)

	ctx, cancel := context.WithTimeout(context.Background(), config.Watsonx.Timeout+30*time.Second)
	defer cancel()

	authenticator := auth.NewAuthenticator(creds, auth.Options{
		InsecureSkipVerify: config.Watsonx.IAMInsecureSkipVerify,
	}, logger)
	tokens := auth.NewTokenHolder(authenticator, logger)

	fmt.Printf("\nrequesting access token...\n")
	if _, err := tokens.Acquire(ctx); err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) && authErr.StatusCode != 0 {
			fmt.Printf("❌ authentication rejected (status %d): %s\n", authErr.StatusCode, authErr.Body)
		} else {
			fmt.Printf("❌ authentication failed: %v\n", err)
		}
		os.Exit(1)
	}
	if exp, ok := tokens.ExpiresAt(); ok {
		fmt.Printf("✅ authenticated, token expires at %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
	} else {
		fmt.Printf("✅ authenticated\n")
	}

	if *imagePath == "" {
		return
	}

	client := watsonx.NewClient(watsonx.NewConfig(config.Watsonx, creds), tokens, logger)
	p := result.ResolvePrompt(*task, *prompt)
	fmt.Printf("\ndescribing %s\nprompt: %s\n", *imagePath, p)

	started := time.Now()
	text, err := client.DescribeImageFile(ctx, *imagePath, p, tokens.Token())
	if err != nil {
		fmt.Printf("❌ vision request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ answer received in %s\n\n", time.Since(started).Round(time.Millisecond))

	r := result.Interpret(*task, text)
	fmt.Println(r.Text)
	if r.MermaidCode != nil {
		fmt.Printf("\n--- mermaid ---\n%s\n", *r.MermaidCode)
	}
	for i, block := range r.CodeBlocks {
		fmt.Printf("\n--- code block %d (%s) ---\n%s\n", i+1, block.Language, block.Code)
	}
}
