package llm

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) callCodex(ctx context.Context, prompt, model string) (string, error) {
	promptFile, cleanup, err := writePromptFile(prompt)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{
		"exec",
		"--skip-git-repo-check",
		"--ephemeral",
		"-m", model,
		instructionFor(promptFile),
	}

	stdout, stderr, runErr := c.runner.run(ctx, "codex", args, nil)
	if runErr != nil {
		return "", fmt.Errorf("llm: codex CLI failed: %s", truncate(stderr, 500))
	}

	output := strings.TrimSpace(stdout)
	if output == "" {
		return "", fmt.Errorf("llm: codex CLI returned no output: %s", truncate(stderr, 500))
	}
	return output, nil
}
