// -----------------------------------------------------------------------
// Gemini Captcha Solver - Vision-model captcha transcription
// -----------------------------------------------------------------------

package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"google.golang.org/genai"
)

const captchaPrompt = "Read the characters shown in this captcha image. " +
	"Respond with only the characters, no explanation, no punctuation."

// GeminiSolver sends captcha images to a vision-capable Gemini model and
// returns the transcribed text
type GeminiSolver struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiSolver initializes the genai client for captcha solving
func NewGeminiSolver(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiSolver, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api_key is required for captcha solving")
	}

	model := config.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Timeout, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info().
		Str("model", model).
		Dur("timeout", timeout).
		Msg("Gemini captcha solver initialized")

	return &GeminiSolver{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Solve returns the text the model reads from the captcha image
func (s *GeminiSolver) Solve(ctx context.Context, imagePNG []byte) (string, error) {
	if len(imagePNG) == 0 {
		return "", fmt.Errorf("captcha image is empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText(captchaPrompt),
				genai.NewPartFromBytes(imagePNG, "image/png"),
			},
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}

	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("captcha solve request failed: %w", err)
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}

	solution := strings.TrimSpace(text.String())
	if solution == "" {
		return "", fmt.Errorf("no captcha text returned from model")
	}

	s.logger.Debug().
		Int("image_bytes", len(imagePNG)).
		Int("solution_length", len(solution)).
		Msg("Captcha transcribed")

	return solution, nil
}
