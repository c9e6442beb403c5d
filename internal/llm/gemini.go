package llm

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) callGemini(ctx context.Context, prompt, model string) (string, error) {
	promptFile, cleanup, err := writePromptFile(prompt)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{
		"--prompt", instructionFor(promptFile),
		"--model", model,
		"--output-format", "text",
	}

	stdout, stderr, runErr := c.runner.run(ctx, "gemini", args, nil)
	if runErr != nil {
		return "", fmt.Errorf("llm: gemini CLI failed: %s", truncate(stderr, 500))
	}

	output := strings.TrimSpace(stdout)
	if output == "" {
		return "", fmt.Errorf("llm: gemini CLI returned no output: %s", truncate(stderr, 500))
	}
	return output, nil
}
