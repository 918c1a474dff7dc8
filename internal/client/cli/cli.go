// Package cli реализует команды клиента doccollab.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/doccollab/internal/client/api"
	"github.com/iudanet/doccollab/internal/client/iocli"
)

// TokenEnv переменная окружения с bearer-токеном
const TokenEnv = "DOCCOLLAB_TOKEN"

// TokenSources источники токена
type TokenSources struct {
	FromFile string
	FromArgs string
}

// Cli клиент командной строки
type Cli struct {
	io        iocli.IO
	serverURL string
}

// New создает CLI для сервера serverURL
func New(serverURL string, io iocli.IO) *Cli {
	return &Cli{
		io:        io,
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Run выполняет команду: читает токен и вызывает обработчик команды
func (c *Cli) Run(ctx context.Context, tokens TokenSources, command string, args []string) error {
	cmd, ok := commands[command]
	if !ok {
		c.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}

	token, err := c.readToken(tokens)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	return cmd.run(ctx, c, api.NewClient(c.serverURL, token), args)
}

// readToken получает токен из источников в порядке приоритета:
// 1. Переменная окружения DOCCOLLAB_TOKEN
// 2. Файл, указанный в FromFile
// 3. Параметр командной строки FromArgs
// 4. Интерактивный ввод (fallback)
func (c *Cli) readToken(tokens TokenSources) (string, error) {
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		return env, nil
	}

	if tokens.FromFile != "" {
		content, err := os.ReadFile(tokens.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		token := strings.TrimSpace(string(content))
		if token == "" {
			return "", fmt.Errorf("token file %s is empty", tokens.FromFile)
		}
		return token, nil
	}

	if tokens.FromArgs != "" {
		return tokens.FromArgs, nil
	}

	token, err := c.io.ReadSecret("Access token: ")
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	return token, nil
}

// printJSON печатает ответ сервера с отступами
func (c *Cli) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	_, err = c.io.Write(append(data, '\n'))
	return err
}

// PrintUsage печатает справку
func (c *Cli) PrintUsage() {
	c.io.Println("Usage: doccollab [global flags] <command> [flags]")
	c.io.Println()
	c.io.Println("Global flags:")
	c.io.Println("  -server URL        server address (default http://localhost:8080)")
	c.io.Println("  -token TOKEN       bearer token (or " + TokenEnv + ", or -token-file)")
	c.io.Println("  -token-file PATH   file containing the bearer token")
	c.io.Println()
	c.io.Println("Commands:")
	for _, name := range commandOrder {
		c.io.Printf("  %-11s %s\n", name, commands[name].usage)
	}
}
